package keys

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, perm))
	return path
}

func ticketRecord() []byte {
	record := make([]byte, TicketKeyFileSize)
	for i := range record {
		record[i] = byte(i + 1)
	}
	return record
}

func TestReadTicketKeyFiles(t *testing.T) {
	record := ticketRecord()
	file := writeFile(t, "key", record, 0600)

	keys, err := ReadTicketKeyFiles([]string{file})
	require.NoError(t, err)
	require.Len(t, keys.Keys, 1)

	k := keys.Keys[0]
	assert.Equal(t, record[:16], k.Name[:])
	assert.Equal(t, record[16:32], k.AESKey[:])
	assert.Equal(t, record[32:48], k.HMACKey[:])
}

func TestReadTicketKeyFilesSizeMismatch(t *testing.T) {
	good := writeFile(t, "good", ticketRecord(), 0600)

	tests := []struct {
		name string
		size int
	}{
		{name: "short", size: TicketKeyFileSize - 1},
		{name: "long", size: TicketKeyFileSize + 1},
		{name: "empty", size: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := writeFile(t, "bad", make([]byte, tt.size), 0600)
			// A bad file poisons the whole load even when other
			// files are fine: no partial key set.
			keys, err := ReadTicketKeyFiles([]string{good, bad})
			assert.Error(t, err)
			assert.Nil(t, keys)
		})
	}
}

func TestReadTicketKeyFilesMissingFile(t *testing.T) {
	keys, err := ReadTicketKeyFiles([]string{filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)
	assert.Nil(t, keys)
}

func TestTicketKeysDestroy(t *testing.T) {
	file := writeFile(t, "key", ticketRecord(), 0600)
	keys, err := ReadTicketKeyFiles([]string{file})
	require.NoError(t, err)

	held := keys.Keys
	keys.Destroy()

	assert.Nil(t, keys.Keys)
	zero := make([]byte, 16)
	for _, k := range held {
		assert.True(t, bytes.Equal(k.Name[:], zero), "name not erased")
		assert.True(t, bytes.Equal(k.AESKey[:], zero), "aes key not erased")
		assert.True(t, bytes.Equal(k.HMACKey[:], zero), "hmac key not erased")
	}
}

func TestReadPasswordFile(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		perm    os.FileMode
		want    string
		wantErr bool
	}{
		{name: "owner read write", data: "secret\n", perm: 0600, want: "secret"},
		{name: "owner only full", data: "secret\n", perm: 0700, want: "secret"},
		{name: "extra lines ignored", data: "secret\nsecond\nthird\n", perm: 0600, want: "secret"},
		{name: "no trailing newline", data: "secret", perm: 0600, want: "secret"},
		{name: "crlf line ending", data: "secret\r\n", perm: 0600, want: "secret"},
		{name: "group readable rejected", data: "secret\n", perm: 0640, wantErr: true},
		{name: "world readable rejected", data: "secret\n", perm: 0604, wantErr: true},
		{name: "group executable rejected", data: "secret\n", perm: 0610, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := writeFile(t, "passwd", []byte(tt.data), tt.perm)
			got, err := ReadPasswordFile(file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadPasswordFileMissing(t *testing.T) {
	_, err := ReadPasswordFile(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
