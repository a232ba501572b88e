package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReportTxnInfoTableSize(t *testing.T) {
	ReportTxnInfoTableSize(1, 2, 7)
	got := testutil.ToFloat64(txnInfoTableSize.WithLabelValues("1", "2"))
	assert.Equal(t, float64(7), got)

	ReportTxnInfoTableSize(1, 2, 0)
	got = testutil.ToFloat64(txnInfoTableSize.WithLabelValues("1", "2"))
	assert.Zero(t, got)
}
