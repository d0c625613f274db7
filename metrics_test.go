package sbits

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	assertion "github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	assert := assertion.New(t)

	db := mustOpen(t, testOptions())
	for i := uint32(0); i < 500; i++ {
		assert.NoError(db.Put(key32(i), data12(i%100)))
	}
	assert.NoError(db.Flush())
	out := make([]byte, 12)
	assert.NoError(db.Get(key32(123), out))

	reg := prometheus.NewPedanticRegistry()
	assert.NoError(reg.Register(NewCollector(db)))

	mfs, err := reg.Gather()
	assert.NoError(err)
	assert.Len(mfs, 5)

	values := make(map[string]float64)
	for _, mf := range mfs {
		values[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
	}
	s := db.Stats()
	assert.Equal(float64(s.Writes), values["sbits_page_writes_total"])
	assert.Equal(float64(s.Reads), values["sbits_page_reads_total"])
	assert.Equal(float64(s.IdxWrites), values["sbits_index_page_writes_total"])
	assert.NotZero(values["sbits_page_writes_total"])
}
