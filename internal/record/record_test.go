package record

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIDs(ids ...ID) func() ID {
	i := 0
	return func() ID {
		id := ids[i]
		i++
		return id
	}
}

func testBuilder(ids ...ID) *Builder {
	return &Builder{
		Host:    "host-a",
		Version: Version,
		Clock:   clockwork.NewFakeClockAt(time.Unix(1700000000, 0)),
		NewID:   fixedIDs(ids...),
	}
}

func encrypted(r Record[DecryptedData]) Record[EncryptedData] {
	return WithData(r, EncryptedData{Data: r.Data, ContentEncryptionKey: "none"})
}

func TestBuilderStartsChainAtZero(t *testing.T) {
	b := testBuilder("r0")
	r := b.Next("history", nil, DecryptedData("ls"))

	assert.Equal(t, ID("r0"), r.ID)
	assert.Equal(t, Idx(0), r.Idx)
	assert.Nil(t, r.Parent)
	assert.Equal(t, HostID("host-a"), r.Host)
	assert.Equal(t, "history", r.Tag)
	assert.Equal(t, Version, r.Version)
	assert.Equal(t, uint64(time.Unix(1700000000, 0).UnixNano()), r.Timestamp)
}

func TestBuilderExtendsTail(t *testing.T) {
	b := testBuilder("r0", "r1")
	first := encrypted(b.Next("history", nil, DecryptedData("ls")))
	second := b.Next("history", &first, DecryptedData("pwd"))

	assert.Equal(t, Idx(1), second.Idx)
	require.NotNil(t, second.Parent)
	assert.Equal(t, ID("r0"), *second.Parent)
}

func TestWithDataPreservesIdentity(t *testing.T) {
	parent := ID("p")
	r := Record[DecryptedData]{ID: "x", Idx: 4, Host: "h", Parent: &parent, Timestamp: 9, Version: "v0", Tag: "kv", Data: DecryptedData("a")}
	e := WithData(r, EncryptedData{Data: []byte("zz"), ContentEncryptionKey: "none"})

	assert.Equal(t, r.ID, e.ID)
	assert.Equal(t, r.Idx, e.Idx)
	assert.Equal(t, r.Host, e.Host)
	assert.Equal(t, r.Parent, e.Parent)
	assert.Equal(t, r.Tag, e.Tag)
	assert.Equal(t, r.AdditionalData(), e.AdditionalData())
}

func TestValidateChain(t *testing.T) {
	b := testBuilder("r0", "r1", "r2", "r3")
	r0 := encrypted(b.Next("history", nil, nil))
	r1 := encrypted(b.Next("history", &r0, nil))
	r2 := encrypted(b.Next("history", &r1, nil))
	r3 := encrypted(b.Next("history", &r2, nil))

	t.Run("full chain from nothing", func(t *testing.T) {
		assert.NoError(t, ValidateChain(nil, []Record[EncryptedData]{r0, r1, r2, r3}))
	})
	t.Run("continuation", func(t *testing.T) {
		assert.NoError(t, ValidateChain(&r1, []Record[EncryptedData]{r2, r3}))
	})
	t.Run("empty batch", func(t *testing.T) {
		assert.NoError(t, ValidateChain(&r1, nil))
	})
	t.Run("gap", func(t *testing.T) {
		err := ValidateChain(&r0, []Record[EncryptedData]{r2})
		assert.ErrorIs(t, err, ErrBrokenChain)
	})
	t.Run("out of order", func(t *testing.T) {
		err := ValidateChain(nil, []Record[EncryptedData]{r0, r2, r1})
		assert.ErrorIs(t, err, ErrBrokenChain)
	})
	t.Run("missing prefix", func(t *testing.T) {
		err := ValidateChain(nil, []Record[EncryptedData]{r1})
		assert.ErrorIs(t, err, ErrBrokenChain)
	})
	t.Run("wrong parent", func(t *testing.T) {
		bad := r2
		other := ID("elsewhere")
		bad.Parent = &other
		err := ValidateChain(&r1, []Record[EncryptedData]{bad})
		assert.ErrorIs(t, err, ErrBrokenChain)
	})
	t.Run("nul in tag", func(t *testing.T) {
		bad := r0
		bad.Tag = "hist\x00ory"
		err := ValidateChain(nil, []Record[EncryptedData]{bad})
		assert.ErrorIs(t, err, ErrMalformed)
	})
	t.Run("mixed chains", func(t *testing.T) {
		bad := r1
		bad.Tag = "kv"
		err := ValidateChain(nil, []Record[EncryptedData]{r0, bad})
		assert.ErrorIs(t, err, ErrBrokenChain)
	})
}

func TestAdditionalDataCanonical(t *testing.T) {
	ad := AdditionalData{ID: "id-1", Idx: 7, Version: "v0", Tag: "<history>", Host: "h1"}
	assert.Equal(t,
		`{"host":"h1","id":"id-1","idx":7,"tag":"<history>","version":"v0"}`,
		string(ad.Canonical()))
}

func TestAdditionalDataCanonicalKeepsComposition(t *testing.T) {
	composed := AdditionalData{ID: "a", Tag: "caf\u00e9", Host: "h"}
	decomposed := AdditionalData{ID: "a", Tag: "cafe\u0301", Host: "h"}
	assert.NotEqual(t, composed.Canonical(), decomposed.Canonical(),
		"distinct tags must not share associated data")
}

func TestBuilderNormalizesTag(t *testing.T) {
	b := NewBuilder("h1")
	r := b.Next("cafe\u0301", nil, DecryptedData("x"))
	assert.Equal(t, "caf\u00e9", r.Tag)
	require.NoError(t, CheckChainName(r.Host, r.Tag))
}

func TestCheckChainName(t *testing.T) {
	tests := []struct {
		name string
		host HostID
		tag  string
		ok   bool
	}{
		{"plain", "h1", "history", true},
		{"nfc", "h1", "caf\u00e9", true},
		{"decomposed tag", "h1", "cafe\u0301", false},
		{"nul in tag", "h1", "a\x00b", false},
		{"nul in host", "h\x001", "history", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckChainName(tt.host, tt.tag)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestAdditionalDataCanonicalDistinguishesFields(t *testing.T) {
	base := AdditionalData{ID: "a", Idx: 1, Version: "v0", Tag: "t", Host: "h"}
	variants := []AdditionalData{
		{ID: "b", Idx: 1, Version: "v0", Tag: "t", Host: "h"},
		{ID: "a", Idx: 2, Version: "v0", Tag: "t", Host: "h"},
		{ID: "a", Idx: 1, Version: "v1", Tag: "t", Host: "h"},
		{ID: "a", Idx: 1, Version: "v0", Tag: "u", Host: "h"},
		{ID: "a", Idx: 1, Version: "v0", Tag: "t", Host: "g"},
	}
	for _, v := range variants {
		assert.NotEqual(t, base.Canonical(), v.Canonical(), v.String())
	}
}

func TestStatus(t *testing.T) {
	s := NewStatus()
	_, ok := s.Get("h1", "history")
	assert.False(t, ok)

	s.Set("h2", "kv", 3)
	s.Set("h1", "history", 5)
	s.Set("h1", "history", 6)

	idx, ok := s.Get("h1", "history")
	require.True(t, ok)
	assert.Equal(t, Idx(6), idx)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Chain{{Host: "h1", Tag: "history"}, {Host: "h2", Tag: "kv"}}, s.Chains())
}

func TestStatusZeroValueSet(t *testing.T) {
	var s Status
	s.Set("h", "t", 0)
	idx, ok := s.Get("h", "t")
	assert.True(t, ok)
	assert.Equal(t, Idx(0), idx)
}

func TestParseHostID(t *testing.T) {
	h := NewHostID()
	parsed, err := ParseHostID(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHostID("not-a-uuid")
	assert.Error(t, err)
}
