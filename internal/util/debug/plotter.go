// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package debug

import (
	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// plotter builds statsviz plots from Prometheus metrics.
type plotter struct {
	g prometheus.Gatherer
}

// newPlotter creates a new plotter.
func newPlotter(g prometheus.Gatherer) *plotter {
	return &plotter{
		g: g,
	}
}

// plotConfig describes a single plot of metric families.
type plotConfig struct {
	name   string
	title  string
	yTitle string
	typ    statsviz.TimeSeriesType
	series [][2]string // metric family name and series name
}

// plots returns plots for polydoc metrics.
func (p *plotter) plots() ([]statsviz.TimeSeriesPlot, error) {
	configs := []plotConfig{{
		name:   "async_tasks",
		title:  "Async tasks",
		yTitle: "tasks",
		typ:    statsviz.Scatter,
		series: [][2]string{
			{"polydoc_async_running", "running"},
			{"polydoc_async_waiting", "waiting"},
		},
	}, {
		name:   "rpc_calls",
		title:  "RPC calls",
		yTitle: "calls",
		typ:    statsviz.Bar,
		series: [][2]string{
			{"polydoc_rpc_calls_total", "sent"},
			{"polydoc_rpc_handled_total", "handled"},
		},
	}, {
		name:   "sql_connections",
		title:  "SQL connections",
		yTitle: "connections",
		typ:    statsviz.Scatter,
		series: [][2]string{
			{"polydoc_sqldb_open", "open"},
			{"polydoc_sqldb_in_use", "in use"},
		},
	}}

	res := make([]statsviz.TimeSeriesPlot, 0, len(configs))

	for _, c := range configs {
		var series []statsviz.TimeSeries

		for _, fn := range c.series {
			family := fn[0]
			series = append(series, statsviz.TimeSeries{
				Name:    fn[1],
				Unitfmt: "%{y:.4s}",
				GetValue: func() float64 {
					m, _ := p.g.Gather()
					return sum(m, family)
				},
			})
		}

		plot, err := statsviz.TimeSeriesPlotConfig{
			Name:       c.name,
			Title:      c.title,
			Type:       c.typ,
			YAxisTitle: c.yTitle,
			Series:     series,
		}.Build()
		if err != nil {
			return nil, err
		}

		res = append(res, plot)
	}

	return res, nil
}

// sum returns the sum of values of all metrics in the given family.
func sum(families []*dto.MetricFamily, name string) float64 {
	var res float64

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}

		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				res += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				res += m.GetGauge().GetValue()
			case dto.MetricType_UNTYPED:
				res += m.GetUntyped().GetValue()
			case dto.MetricType_SUMMARY:
				res += m.GetSummary().GetSampleSum()
			case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
				res += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	return res
}
