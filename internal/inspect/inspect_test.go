package inspect

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/cache-info/internal/blobfmt"
	"github.com/any-hub/cache-info/internal/blobfmt/blobtest"
	"github.com/any-hub/cache-info/internal/digestindex"
)

var testUUID = [blobfmt.UUIDSize]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

func sampleBuilder(headerLength uint32, vendor uint32) *blobtest.Builder {
	primary := blobfmt.PrimaryHeader{
		HeaderLength:  headerLength,
		HeaderVersion: 1,
		VendorID:      vendor,
		DeviceID:      0x73bf,
		UUID:          testUUID,
	}
	var private blobfmt.PrivateHeader
	for i := range private.HashID {
		private.HashID[i] = byte(i)
	}
	return blobtest.NewBuilder(primary, private, blobfmt.DefaultLayout())
}

func id(seed byte) [blobfmt.EntryHashSize]byte {
	var out [blobfmt.EntryHashSize]byte
	for i := range out {
		out[i] = seed
	}
	return out
}

func twoEntryBlob() ([]byte, []byte) {
	payload := make([]byte, 37)
	for i := range payload {
		payload[i] = byte(i*7 + 3)
	}
	blob := sampleBuilder(blobfmt.PrimaryHeaderSize, blobfmt.AMDVendorID).
		AddEntry(id(0x11), nil).
		AddEntry(id(0x22), payload).
		Bytes()
	return blob, payload
}

// recorder 记录 Sink 调用顺序。
type recorder struct {
	calls []string
	Collector
}

func (r *recorder) Primary(n int, h *blobfmt.Header) {
	r.calls = append(r.calls, "primary")
	r.Collector.Primary(n, h)
}

func (r *recorder) Private(h *blobfmt.Header) {
	r.calls = append(r.calls, "private")
	r.Collector.Private(h)
}

func (r *recorder) Entry(e EntryReport) {
	r.calls = append(r.calls, "entry")
	r.Collector.Entry(e)
}

func (r *recorder) Finish(count int, err error) {
	r.calls = append(r.calls, "finish")
	r.Collector.Finish(count, err)
}

func TestInspectWellFormedBlob(t *testing.T) {
	blob, payload := twoEntryBlob()

	rep, err := Run(blob, Options{Layout: blobfmt.DefaultLayout()})
	require.NoError(t, err)
	require.NotNil(t, rep.Header)
	assert.Equal(t, len(blob), rep.BlobSize)
	assert.Equal(t, "0x1002", rep.Header.VendorID)
	assert.Equal(t, "0x73bf", rep.Header.DeviceID)
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", rep.Header.UUID)
	assert.Equal(t, blobfmt.MinBlobSize, rep.Header.EntriesOffset)
	assert.Equal(t, 77, rep.Header.ContentSize)
	assert.Equal(t, 2, rep.EntryCount)
	assert.Nil(t, rep.Failure)

	require.Len(t, rep.Entries, 2)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", rep.Entries[0].MD5)
	assert.Equal(t, blobfmt.SumDigest(payload).String(), rep.Entries[1].MD5)
	assert.EqualValues(t, 37, rep.Entries[1].DataSize)
	assert.Equal(t, blobfmt.MinBlobSize+20, rep.Entries[1].Offset)
	assert.False(t, rep.Entries[0].Correlated)
	assert.Equal(t, id(0x22), rep.Entries[1].RawHashID)
	assert.Equal(t, strings.Repeat("22", blobfmt.EntryHashSize), rep.Entries[1].HashID)

	encoded, err := json.Marshal(rep.Entries[1])
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "RawHashID")
}

func TestInspectSinkOrder(t *testing.T) {
	blob, _ := twoEntryBlob()
	rec := &recorder{Collector: *NewCollector()}
	require.NoError(t, Inspect(blob, Options{}, rec))
	assert.Equal(t, []string{"primary", "private", "entry", "entry", "finish"}, rec.calls)
}

func TestInspectTooSmall(t *testing.T) {
	rec := &recorder{Collector: *NewCollector()}
	err := Inspect(make([]byte, 10), Options{}, rec)
	require.ErrorIs(t, err, blobfmt.ErrTooSmall)
	assert.Equal(t, []string{"finish"}, rec.calls)
	require.NotNil(t, rec.Report().Failure)
	assert.Equal(t, "too_small", rec.Report().Failure.Kind)
}

func TestInspectForeignVendorStillReportsPrimary(t *testing.T) {
	blob := sampleBuilder(blobfmt.PrimaryHeaderSize, 0x10de).AddEntry(id(1), []byte("x")).Bytes()

	rec := &recorder{Collector: *NewCollector()}
	err := Inspect(blob, Options{}, rec)
	require.ErrorIs(t, err, blobfmt.ErrUnsupportedVendor)
	assert.Equal(t, []string{"primary", "finish"}, rec.calls)
	assert.Equal(t, "0x10de", rec.Report().Header.VendorID)
	assert.Zero(t, rec.Report().Header.EntriesOffset)
	assert.Empty(t, rec.Report().Entries)
}

func TestInspectKeepsEntriesBeforeFailure(t *testing.T) {
	blob := sampleBuilder(blobfmt.PrimaryHeaderSize, blobfmt.AMDVendorID).
		AddEntry(id(1), []byte("ok")).
		AddRawEntry(id(2), 1000, []byte("short")).
		Bytes()

	rep, err := Run(blob, Options{})
	require.ErrorIs(t, err, blobfmt.ErrPayloadOverrunsBuffer)
	assert.Equal(t, 1, rep.EntryCount)
	require.Len(t, rep.Entries, 1)
	assert.Equal(t, "payload_overruns_buffer", rep.Failure.Kind)
}

func TestInspectRejectsInvalidLayout(t *testing.T) {
	blob, _ := twoEntryBlob()
	rep, err := Run(blob, Options{Layout: blobfmt.Layout{SizeFieldWidth: 3}})
	require.Error(t, err)
	assert.Nil(t, rep.Header)
	assert.Equal(t, "invalid_options", rep.Failure.Kind)
}

func TestInspectCorrelatesWithDigestIndex(t *testing.T) {
	blob, payload := twoEntryBlob()

	dir := t.TempDir()
	elf := filepath.Join(dir, "shader.elf")
	require.NoError(t, os.WriteFile(elf, payload, 0o644))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	idx, err := digestindex.Build(context.Background(), dir, digestindex.Options{Logger: logger})
	require.NoError(t, err)

	rep, err := Run(blob, Options{Resolver: idx})
	require.NoError(t, err)
	require.Len(t, rep.Entries, 2)

	assert.True(t, rep.Entries[0].Correlated)
	assert.False(t, rep.Entries[0].Matched)
	assert.Empty(t, rep.Entries[0].SourcePath)

	assert.True(t, rep.Entries[1].Matched)
	assert.Equal(t, elf, rep.Entries[1].SourcePath)
}

func TestInspectWideSizeField(t *testing.T) {
	layout := blobfmt.Layout{SizeFieldWidth: 8}
	primary := blobfmt.PrimaryHeader{HeaderLength: blobfmt.PrimaryHeaderSize, VendorID: blobfmt.AMDVendorID}
	blob := blobtest.NewBuilder(primary, blobfmt.PrivateHeader{}, layout).
		AddEntry(id(3), []byte("wide")).
		Bytes()

	rep, err := Run(blob, Options{Layout: layout})
	require.NoError(t, err)
	require.Len(t, rep.Entries, 1)
	assert.EqualValues(t, 4, rep.Entries[0].DataSize)

	_, err = Run(blob, Options{})
	require.Error(t, err)
}
