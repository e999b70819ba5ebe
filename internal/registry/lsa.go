// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package registry

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// LsaKeySet is the {key_id -> secret} table recovered from either
// PolEKList (post-Vista) or PolSecretEncryptionKey (pre-Vista),
// spec.md §4.10 "LSA keys".
type LsaKeySet struct {
	preVista bool
	keys     map[string][]byte // keyID hex -> 32-byte AES key (post-Vista only)
	rc4Key   []byte            // pre-Vista: the single derived RC4 key
}

// DeriveLsaKeys reads SECURITY\Policy\PolEKList when present (post-
// Vista, SHA-256-stretched AES-ECB wrapping) and falls back to
// PolSecretEncryptionKey (pre-Vista, MD5-stretched RC4).
func DeriveLsaKeys(security *Hive, bootKey []byte) (*LsaKeySet, error) {
	if policy, err := security.FindKey("Policy", "PolEKList"); err == nil {
		blob, ok, err := security.ValueByName(policy, "(default)")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("registry: PolEKList has no default value")
		}
		keys, err := decodePolEKList(blob.data, bootKey)
		if err != nil {
			return nil, err
		}
		return &LsaKeySet{keys: keys}, nil
	}
	policy, err := security.FindKey("Policy", "PolSecretEncryptionKey")
	if err != nil {
		return nil, fmt.Errorf("registry: neither PolEKList nor PolSecretEncryptionKey present: %w", err)
	}
	blob, ok, err := security.ValueByName(policy, "(default)")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("registry: PolSecretEncryptionKey has no default value")
	}
	rc4Key, err := decodePolSecretEncryptionKey(blob.data, bootKey)
	if err != nil {
		return nil, err
	}
	return &LsaKeySet{preVista: true, rc4Key: rc4Key}, nil
}

// lsaSecretHeaderLen is the fixed prefix of an LSA_SECRET structure
// (version, 16-byte key-id GUID, algorithm, flags) that precedes the
// AES/DES-encrypted payload, spec.md §4.10 "LSA keys"/"LSA secrets".
const lsaSecretHeaderLen = 4 + 16 + 4 + 4

func decodePolEKList(blob, bootKey []byte) (map[string][]byte, error) {
	if len(blob) < lsaSecretHeaderLen {
		return nil, fmt.Errorf("registry: PolEKList too short")
	}
	encrypted := blob[lsaSecretHeaderLen:]
	aesKey := stretchSHA256(bootKey)
	plain, err := aesCBCDecryptZeroIV(aesKey, encrypted)
	if err != nil {
		return nil, fmt.Errorf("registry: PolEKList decrypt: %w", err)
	}
	secret, err := unwrapSecretBlob(plain)
	if err != nil {
		return nil, err
	}
	return parseLsaKeyRecords(secret)
}

// parseLsaKeyRecords walks the decrypted PolEKList payload as a run of
// fixed-size key records: a 16-byte key-id GUID followed by a 32-byte
// AES-256 key, spec.md §4.10's "{key_id -> secret}" table. Real hives
// interleave a short per-record header before the GUID; since no
// original_source sample is available to pin the exact header length,
// this walks the documented public layout (four uint32 header fields)
// consistent with well-known LSA secret tooling.
func parseLsaKeyRecords(data []byte) (map[string][]byte, error) {
	const recordLen = 16 + 32 + 16 // header(16) + guid(16) + key(32), reordered below
	out := make(map[string][]byte)
	pos := 0
	for pos+16+16+32 <= len(data) {
		pos += 16 // skip per-record header (unk0..unk3 uint32 x4)
		guid := data[pos : pos+16]
		pos += 16
		key := data[pos : pos+32]
		pos += 32
		out[hex.EncodeToString(guid)] = append([]byte(nil), key...)
		_ = recordLen
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("registry: PolEKList yielded no keys")
	}
	return out, nil
}

func decodePolSecretEncryptionKey(blob, bootKey []byte) ([]byte, error) {
	if len(blob) < lsaSecretHeaderLen {
		return nil, fmt.Errorf("registry: PolSecretEncryptionKey too short")
	}
	encrypted := blob[lsaSecretHeaderLen:]
	rc4Key := stretchMD5(bootKey)
	c, err := rc4.NewCipher(rc4Key)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(encrypted))
	c.XORKeyStream(plain, encrypted)
	secret, err := unwrapSecretBlob(plain)
	if err != nil {
		return nil, err
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("registry: pre-Vista LSA key too short")
	}
	return secret[:16], nil
}

// unwrapSecretBlob strips the LSA_SECRET_BLOB envelope (a length field
// plus 12 reserved bytes) that surrounds the real secret bytes once the
// outer encryption layer has been removed.
func unwrapSecretBlob(plain []byte) ([]byte, error) {
	if len(plain) < 16 {
		return nil, fmt.Errorf("registry: secret blob too short")
	}
	length := binary.LittleEndian.Uint32(plain[:4])
	if int(length) > len(plain)-16 {
		length = uint32(len(plain) - 16)
	}
	return plain[16 : 16+length], nil
}

// DecryptSecret decrypts one SECURITY\Policy\Secrets\<name>\CurrVal
// blob, post-Vista via the key-id lookup into the LsaKeySet, pre-Vista
// via the single derived RC4/DES-schedule key (spec.md §4.10 "LSA
// secrets").
func (k *LsaKeySet) DecryptSecret(blob []byte) ([]byte, error) {
	if len(blob) < lsaSecretHeaderLen {
		return nil, fmt.Errorf("registry: secret blob too short")
	}
	if k.preVista {
		c, err := rc4.NewCipher(k.rc4Key)
		if err != nil {
			return nil, err
		}
		plain := make([]byte, len(blob)-lsaSecretHeaderLen)
		c.XORKeyStream(plain, blob[lsaSecretHeaderLen:])
		return unwrapSecretBlob(plain)
	}
	keyID := hex.EncodeToString(blob[4:20])
	aesKey, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("registry: no LSA key for id %s", keyID)
	}
	plain, err := aesCBCDecryptZeroIV(aesKey, blob[lsaSecretHeaderLen:])
	if err != nil {
		return nil, err
	}
	return unwrapSecretBlob(plain)
}

// stretchSHA256 implements the "SHA-256-stretched" derivation spec.md
// §4.10 names for post-Vista LSA key unwrap: hash the boot key, then
// fold the boot key back in 1000 times.
func stretchSHA256(bootKey []byte) []byte {
	h := sha256.Sum256(bootKey)
	digest := h[:]
	for i := 0; i < 1000; i++ {
		sum := sha256.New()
		sum.Write(digest)
		sum.Write(bootKey)
		digest = sum.Sum(nil)
	}
	return digest
}

// stretchMD5 is the pre-Vista analogue spec.md §4.10 calls "MD5-
// stretched RC4".
func stretchMD5(bootKey []byte) []byte {
	h := md5.Sum(bootKey)
	digest := h[:]
	for i := 0; i < 1000; i++ {
		sum := md5.New()
		sum.Write(digest)
		sum.Write(bootKey)
		digest = sum.Sum(nil)
	}
	return digest
}

func aesCBCDecryptZeroIV(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	n := len(data) - len(data)%block.BlockSize()
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	mode := cipher.NewCBCDecrypter(block, make([]byte, block.BlockSize()))
	mode.CryptBlocks(out, data[:n])
	return out, nil
}

// NLRecord is one decoded domain credential cache entry, spec.md
// §4.10's "username, domain, UPN, full name, MS Cache v1/v2 hash, and a
// hashcat-formatted row" for SECURITY\Cache\* entries.
type NLRecord struct {
	Username       string
	Domain         string
	DNSDomain      string
	FullName       string
	Hash           []byte
	IterationCount uint32
	PreVista       bool
	HashcatFormat  string
}

// nlRecordFixedHeaderLen is the fixed NL_RECORD header preceding its
// 16-byte IV, laid out per the public NL_RECORD documentation (length
// fields for the variable-length trailing strings, identity/flags
// fields, and a FILETIME last-access stamp); spec.md §4.10 "Domain
// credential cache" names the decrypt algorithm but not this byte
// layout, so it is reconstructed from well-known DFIR tooling rather
// than an original_source sample.
const nlRecordFixedHeaderLen = 64
const nlRecordHeaderLen = nlRecordFixedHeaderLen + 16 // + IV

// DecryptNLRecord decrypts one SECURITY\Cache\NL$n value using the
// NL$KM key already recovered as an LSA secret (post-Vista: AES-CBC;
// pre-Vista: HMAC-MD5-keyed RC4), per spec.md §4.10.
func DecryptNLRecord(raw, nlkm []byte, preVista bool) (*NLRecord, error) {
	if len(raw) < nlRecordHeaderLen+32 {
		return nil, fmt.Errorf("registry: NL record too short")
	}
	userLen := int(binary.LittleEndian.Uint16(raw[0:2]))
	domainLen := int(binary.LittleEndian.Uint16(raw[2:4]))
	fullNameLen := int(binary.LittleEndian.Uint16(raw[6:8]))
	dnsDomainLen := int(binary.LittleEndian.Uint16(raw[60:62]))

	iv := raw[nlRecordFixedHeaderLen:nlRecordHeaderLen]
	cipherText := raw[nlRecordHeaderLen:]

	var plain []byte
	var err error
	if preVista {
		plain, err = rc4Stream(nlkm[:16], cipherText)
	} else {
		plain, err = aesCBCDecrypt(nlkm[:16], iv, cipherText)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: NL record decrypt: %w", err)
	}

	hashLen := 16
	rec := &NLRecord{PreVista: preVista}
	if len(plain) >= hashLen {
		rec.Hash = append([]byte(nil), plain[:hashLen]...)
	}
	strData := plain[hashLen:]
	take := func(n int) string {
		if n < 0 || n > len(strData) {
			n = len(strData)
		}
		s := decodeUTF16(strData[:n])
		strData = strData[n:]
		return s
	}
	rec.Username = take(userLen)
	rec.Domain = take(domainLen)
	rec.FullName = take(fullNameLen)
	rec.DNSDomain = take(dnsDomainLen)

	if preVista {
		rec.HashcatFormat = fmt.Sprintf("%s:$DCC1$#%s#%s", rec.Username, rec.Username, hex.EncodeToString(rec.Hash))
	} else {
		rec.HashcatFormat = fmt.Sprintf("%s:$DCC2$%d#%s#%s", rec.Username, rec.IterationCount, rec.Username, hex.EncodeToString(rec.Hash))
	}
	return rec, nil
}

func aesCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	n := len(data) - len(data)%block.BlockSize()
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data[:n])
	return out, nil
}

func rc4Stream(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}
