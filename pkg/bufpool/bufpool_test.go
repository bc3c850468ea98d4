package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFloat32ReturnsZeroLength(t *testing.T) {
	Configure(Config{Enabled: true, MaxBufSize: 1 << 16})
	buf := GetFloat32()
	assert.Len(t, buf, 0)
	buf = append(buf, 1, 2, 3)
	PutFloat32(buf)
}

func TestGetUint32Recycled(t *testing.T) {
	Configure(Config{Enabled: true, MaxBufSize: 1 << 16})
	buf := GetUint32()
	buf = append(buf, 1, 2, 3)
	PutUint32(buf)

	buf2 := GetUint32()
	assert.Len(t, buf2, 0)
}

func TestVisitedSetCleared(t *testing.T) {
	Configure(Config{Enabled: true, MaxBufSize: 1 << 16})
	m := GetVisited()
	m[1] = struct{}{}
	m[2] = struct{}{}
	PutVisited(m)

	m2 := GetVisited()
	assert.Len(t, m2, 0)
}

func TestDisabledPoolStillWorks(t *testing.T) {
	Configure(Config{Enabled: false})
	defer Configure(Config{Enabled: true, MaxBufSize: 1 << 16})

	buf := GetFloat32()
	assert.Nil(t, buf)
	PutFloat32([]float32{1, 2, 3})
}
