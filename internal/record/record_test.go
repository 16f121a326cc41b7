package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeFillsTemplate(t *testing.T) {
	template := Record{"id": nil, "name": nil, "active": false}
	src := Record{"id": "x", "extra": 1}

	out := Merge(template, src)
	assert.Equal(t, "x", out["id"])
	assert.Nil(t, out["name"])
	assert.Equal(t, false, out["active"])
	assert.Equal(t, 1, out["extra"])

	// neither input is touched
	out["name"] = "changed"
	assert.Nil(t, template["name"])
	assert.NotContains(t, src, "name")
}

func TestCloneIsIndependent(t *testing.T) {
	orig := Record{"id": "x"}
	cp := orig.Clone()
	cp["id"] = "y"
	assert.Equal(t, "x", orig["id"])
}

func TestInt64Coercions(t *testing.T) {
	assert.Equal(t, int64(5), Int64(5))
	assert.Equal(t, int64(5), Int64(int32(5)))
	assert.Equal(t, int64(5), Int64(int64(5)))
	assert.Equal(t, int64(5), Int64(uint64(5)))
	assert.Equal(t, int64(5), Int64(5.0))
	assert.Equal(t, int64(5), Int64("5"))
	assert.Equal(t, int64(5), Int64(" 5 "))
	assert.Equal(t, int64(5), Int64([]byte("5")))
	assert.Equal(t, int64(0), Int64(nil))
	assert.Equal(t, int64(0), Int64("not a number"))
}

func TestStringCoercions(t *testing.T) {
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "x", String("x"))
	assert.Equal(t, "x", String([]byte("x")))
	assert.Equal(t, "5", String(5))
}

func TestTimeCoercions(t *testing.T) {
	now := time.Date(2015, time.November, 25, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, &now, Time(now))
	assert.Equal(t, &now, Time(&now))
	assert.Nil(t, Time(nil))
	assert.Nil(t, Time("2015-11-25"))
}
