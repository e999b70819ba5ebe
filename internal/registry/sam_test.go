package registry

import (
	"crypto/des"
	"crypto/md5"
	"crypto/rc4"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandDESKeyProducesOddParity(t *testing.T) {
	key8 := expandDESKey([]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77})
	require.Len(t, key8, 8)
	for _, b := range key8 {
		parity := 0
		v := b
		for v != 0 {
			parity ^= int(v & 1)
			v >>= 1
		}
		require.Equal(t, 1, parity, "each byte must carry odd parity")
	}
}

// TestDecryptSamHashRevision1RoundTrip builds a revision-1 SAM hash
// blob the same way decryptSamHash expects to unwrap it: a final DES
// layer over the plaintext hash, then an outer RC4 layer keyed from
// MD5(ridKey||salt), and checks the original 16-byte hash round-trips.
func TestDecryptSamHashRevision1RoundTrip(t *testing.T) {
	ridKey := make([]byte, 16)
	for i := range ridKey {
		ridKey[i] = byte(i + 1)
	}
	salt := ntPasswordSalt

	wantHash := make([]byte, 16)
	for i := range wantHash {
		wantHash[i] = byte(0x10 + i)
	}

	k1 := expandDESKey(samDesKeyHalf(ridKey, 0))
	k2 := expandDESKey(samDesKeyHalf(ridKey, 1))
	desEncrypted := make([]byte, 16)
	b1, err := des.NewCipher(k1)
	require.NoError(t, err)
	b1.Encrypt(desEncrypted[0:8], wantHash[0:8])
	b2, err := des.NewCipher(k2)
	require.NoError(t, err)
	b2.Encrypt(desEncrypted[8:16], wantHash[8:16])

	sum := md5.New()
	sum.Write(ridKey)
	sum.Write(salt)
	rc4Key := sum.Sum(nil)
	c, err := rc4.NewCipher(rc4Key)
	require.NoError(t, err)
	rc4Encrypted := make([]byte, 16)
	c.XORKeyStream(rc4Encrypted, desEncrypted)

	blob := make([]byte, 20)
	blob[2] = 1 // revision 1
	copy(blob[4:20], rc4Encrypted)

	got, err := decryptSamHash(blob, ridKey, salt)
	require.NoError(t, err)
	require.Equal(t, wantHash, got)
}
