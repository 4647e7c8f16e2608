// Package keys loads the secret material the proxy reads at startup:
// session ticket key files and private key password files.
package keys

import (
	"fmt"
	"os"
)

// Sizes of the fields of one ticket key record. A key file is exactly one
// record: name, AES key and HMAC key concatenated with no separators.
const (
	TicketKeyNameSize = 16
	TicketKeyAESSize  = 16
	TicketKeyHMACSize = 16
	TicketKeyFileSize = TicketKeyNameSize + TicketKeyAESSize + TicketKeyHMACSize
)

// TicketKey is one session ticket key record.
type TicketKey struct {
	Name    [TicketKeyNameSize]byte
	AESKey  [TicketKeyAESSize]byte
	HMACKey [TicketKeyHMACSize]byte
}

// TicketKeys holds the loaded key set. Call Destroy when the set is
// replaced or discarded.
type TicketKeys struct {
	Keys []TicketKey
}

// Destroy erases all key bytes. The erasure is explicit so discarded key
// material does not linger in memory until the collector reuses it.
func (t *TicketKeys) Destroy() {
	for i := range t.Keys {
		k := &t.Keys[i]
		for j := range k.Name {
			k.Name[j] = 0
		}
		for j := range k.AESKey {
			k.AESKey[j] = 0
		}
		for j := range k.HMACKey {
			k.HMACKey[j] = 0
		}
	}
	t.Keys = nil
}

// ReadTicketKeyFiles reads one ticket key per file. Each file must be
// exactly TicketKeyFileSize bytes; any mismatch fails the whole load and no
// partial key set is returned.
func ReadTicketKeyFiles(files []string) (*TicketKeys, error) {
	ticketKeys := &TicketKeys{Keys: make([]TicketKey, 0, len(files))}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			ticketKeys.Destroy()
			return nil, fmt.Errorf("tls-ticket-key-file: could not read file %s: %v", file, err)
		}
		if len(data) != TicketKeyFileSize {
			ticketKeys.Destroy()
			return nil, fmt.Errorf("tls-ticket-key-file: want %d bytes but read %d bytes from %s",
				TicketKeyFileSize, len(data), file)
		}

		var key TicketKey
		p := data
		copy(key.Name[:], p[:TicketKeyNameSize])
		p = p[TicketKeyNameSize:]
		copy(key.AESKey[:], p[:TicketKeyAESSize])
		p = p[TicketKeyAESSize:]
		copy(key.HMACKey[:], p[:TicketKeyHMACSize])
		ticketKeys.Keys = append(ticketKeys.Keys, key)
	}
	return ticketKeys, nil
}
