package core

import (
	"crypto/rand"
	"math/big"

	"github.com/dkeye/Huddle/internal/domain"
)

const roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RoomIDSource yields candidate room IDs. Uniqueness is enforced by the Directory.
type RoomIDSource func() (domain.RoomID, error)

// CryptoRoomID draws a fixed-length token from crypto/rand.
func CryptoRoomID() (domain.RoomID, error) {
	buf := make([]byte, domain.RoomIDLen)
	max := big.NewInt(int64(len(roomIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = roomIDAlphabet[n.Int64()]
	}
	return domain.RoomID(buf), nil
}
