package registry

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rc4"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStretchFunctionsAreDeterministicAndSized(t *testing.T) {
	bootKey := []byte("0123456789abcdef")
	a1 := stretchSHA256(bootKey)
	a2 := stretchSHA256(bootKey)
	require.Equal(t, a1, a2)
	require.Len(t, a1, 32)

	m1 := stretchMD5(bootKey)
	m2 := stretchMD5(bootKey)
	require.Equal(t, m1, m2)
	require.Len(t, m1, 16)
}

// buildLsaSecretBlob wraps a secret payload in the inner
// LSA_SECRET_BLOB envelope (length + 12 reserved bytes) and encrypts
// it with AES-256-CBC under a zero IV, then prefixes the outer
// LSA_SECRET header -- the exact shape decodePolEKList/DecryptSecret
// expect to unwrap.
func buildLsaSecretBlob(t *testing.T, aesKey, keyID, secret []byte) []byte {
	t.Helper()
	inner := make([]byte, 16+len(secret))
	binary.LittleEndian.PutUint32(inner[0:4], uint32(len(secret)))
	copy(inner[16:], secret)
	// pad to AES block size
	if rem := len(inner) % aes.BlockSize; rem != 0 {
		inner = append(inner, make([]byte, aes.BlockSize-rem)...)
	}
	block, err := aes.NewCipher(aesKey)
	require.NoError(t, err)
	enc := make([]byte, len(inner))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(enc, inner)

	out := make([]byte, lsaSecretHeaderLen+len(enc))
	binary.LittleEndian.PutUint32(out[0:4], 1)
	copy(out[4:20], keyID)
	copy(out[lsaSecretHeaderLen:], enc)
	return out
}

func TestDecryptSecretPostVistaRoundTrip(t *testing.T) {
	bootKey := []byte("a-test-boot-key!")
	aesKey := stretchSHA256(bootKey)
	keyID := make([]byte, 16)
	for i := range keyID {
		keyID[i] = byte(i)
	}
	secret := []byte("super-secret-value")
	blob := buildLsaSecretBlob(t, aesKey, keyID, secret)

	ks := &LsaKeySet{keys: map[string][]byte{hexID(keyID): aesKey}}
	got, err := ks.DecryptSecret(blob)
	require.NoError(t, err)
	require.Equal(t, secret, got)
}

func hexID(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}

func TestDecryptNLRecordPostVistaRoundTrip(t *testing.T) {
	nlkm := make([]byte, 16)
	for i := range nlkm {
		nlkm[i] = byte(i + 1)
	}
	username := "alice"
	domain := "CORP"
	hash := make([]byte, 16)
	for i := range hash {
		hash[i] = byte(0xA0 + i)
	}
	plain := append(append([]byte(nil), hash...), utf16leBytes(username)...)
	plain = append(plain, utf16leBytes(domain)...)
	if rem := len(plain) % aes.BlockSize; rem != 0 {
		plain = append(plain, make([]byte, aes.BlockSize-rem)...)
	}
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(i)
	}
	block, err := aes.NewCipher(nlkm[:16])
	require.NoError(t, err)
	enc := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc, plain)

	raw := make([]byte, nlRecordHeaderLen+len(enc))
	binary.LittleEndian.PutUint16(raw[0:2], uint16(len(utf16leBytes(username))))
	binary.LittleEndian.PutUint16(raw[2:4], uint16(len(utf16leBytes(domain))))
	copy(raw[nlRecordFixedHeaderLen:nlRecordHeaderLen], iv)
	copy(raw[nlRecordHeaderLen:], enc)

	rec, err := DecryptNLRecord(raw, nlkm, false)
	require.NoError(t, err)
	require.Equal(t, "alice", rec.Username)
	require.Equal(t, "CORP", rec.Domain)
	require.Equal(t, hash, rec.Hash)
}

func TestPreVistaRC4StreamRoundTrip(t *testing.T) {
	key := []byte("pre-vista-key")
	plain := []byte("hello pre-vista secret")
	c, err := rc4.NewCipher(key)
	require.NoError(t, err)
	enc := make([]byte, len(plain))
	c.XORKeyStream(enc, plain)

	got, err := rc4Stream(key, enc)
	require.NoError(t, err)
	require.Equal(t, plain, got)
}
