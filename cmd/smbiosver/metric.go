package main

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type metricCollector struct {
	m []prometheus.Metric
}

func (mc *metricCollector) Collect(c chan<- prometheus.Metric) {
	for _, m := range mc.m {
		c <- m
	}
}

func (mc *metricCollector) Describe(c chan<- *prometheus.Desc) {
}

func outputMetrics(w io.Writer, rep *Report) error {
	var (
		mEntryPointInfo = prometheus.NewDesc(
			"qemu_smbios_entry_point_info",
			"Info metric regarding the detected SMBIOS entry point",
			[]string{"source", "layout", "version", "fingerprint"}, nil,
		)
		mVersion = prometheus.NewDesc(
			"qemu_smbios_version",
			"SMBIOS version as published in PcdSmbiosVersion (major << 8 | minor)",
			[]string{"source"}, nil,
		)
		mDocRev = prometheus.NewDesc(
			"qemu_smbios_doc_rev",
			"SMBIOS document revision, only reported for 3.x entry points",
			[]string{"source"}, nil,
		)
		mTablesSize = prometheus.NewDesc(
			"qemu_smbios_tables_size_bytes",
			"Size of the SMBIOS structure table blob in fw_cfg",
			[]string{"source"}, nil,
		)
		mValidated = prometheus.NewDesc(
			"qemu_smbios_validated",
			"Boolean describing whether the SMBIOS version detection succeeded",
			[]string{"source"}, nil,
		)
	)
	mc := &metricCollector{}
	mc.m = append(mc.m,
		prometheus.MustNewConstMetric(mEntryPointInfo, prometheus.GaugeValue, 1,
			rep.Source, rep.Layout, rep.Version, rep.Fingerprint))
	for _, p := range rep.PCDs {
		switch v := p.Value.(type) {
		case uint16:
			mc.m = append(mc.m, prometheus.MustNewConstMetric(mVersion, prometheus.GaugeValue, float64(v), rep.Source))
		case uint8:
			mc.m = append(mc.m, prometheus.MustNewConstMetric(mDocRev, prometheus.GaugeValue, float64(v), rep.Source))
		case bool:
			val := float64(0)
			if v {
				val = 1
			}
			mc.m = append(mc.m, prometheus.MustNewConstMetric(mValidated, prometheus.GaugeValue, val, rep.Source))
		}
	}
	mc.m = append(mc.m, prometheus.MustNewConstMetric(mTablesSize, prometheus.GaugeValue, float64(rep.TablesSize), rep.Source))

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(mc)

	mfs, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to serialize metrics: %v", err)
		}
	}
	return nil
}
