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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/forensiccorpus/corpus/internal/record"
)

// samUsersPath is where per-account F/V records live, keyed by RID in
// hex, spec.md §4.10 "SAM".
var samUsersPath = []string{"SAM", "Domains", "Account", "Users"}

// securitySecretsPath and securityCachePath locate the LSA secrets and
// domain credential cache entries spec.md §4.10 names.
var securitySecretsPath = []string{"Policy", "Secrets"}
var securityCachePath = []string{"Cache"}

// AnalyzeSecurity runs every security derivation spec.md §4.10
// describes, given a partition's SYSTEM hive and (when present) its
// SAM and SECURITY hives. Each stage is independent: a failure in one
// (e.g. no SECURITY hive recovered for this partition) degrades only
// that stage to "unknown" per spec.md §4.10 "failures degrade to
// unknown rather than abort", never aborting the remaining stages.
func AnalyzeSecurity(system, sam, security *Hive) ([]record.RegistryEntry, error) {
	var rows []record.RegistryEntry

	bootKey, err := BootKey(system)
	if err != nil {
		return nil, errors.Wrap(err, "registry: security analysis: boot key derivation failed")
	}

	if sam != nil {
		accounts, err := sam.analyzeSamAccounts(bootKey)
		if err != nil {
			accounts = nil // degrade: SAM parse failure doesn't block LSA/cache analysis
		}
		for _, a := range accounts {
			rows = append(rows, samAccountRow(a))
		}
	}

	if security != nil {
		lsaKeys, err := DeriveLsaKeys(security, bootKey)
		if err != nil {
			return rows, nil // degrade: no LSA keys means secrets/cache stay unrecovered
		}
		rows = append(rows, security.analyzeSecrets(lsaKeys)...)
		rows = append(rows, security.analyzeCache(lsaKeys)...)
	}

	return rows, nil
}

func (h *Hive) analyzeSamAccounts(bootKey []byte) ([]*SamAccount, error) {
	users, err := h.FindKey(samUsersPath...)
	if err != nil {
		return nil, err
	}
	subs, err := h.Subkeys(users)
	if err != nil {
		return nil, err
	}
	var out []*SamAccount
	for _, k := range subs {
		if k.name == "Names" {
			continue // username->RID index, not an account record
		}
		rid64, err := strconv.ParseUint(k.name, 16, 32)
		if err != nil {
			continue
		}
		fVal, ok, err := h.ValueByName(k, "F")
		if err != nil || !ok {
			continue
		}
		vVal, ok, err := h.ValueByName(k, "V")
		if err != nil || !ok {
			continue
		}
		acct, err := ParseSamAccount(uint32(rid64), fVal.data, vVal.data, bootKey)
		if err != nil {
			continue // spec.md §7 kind 4: crypto failure degrades this one account, not the pass
		}
		out = append(out, acct)
	}
	return out, nil
}

func samAccountRow(a *SamAccount) record.RegistryEntry {
	content, _ := json.Marshal(struct {
		Username        string `json:"username"`
		FullName        string `json:"full_name"`
		Comment         string `json:"comment"`
		HomeDir         string `json:"home_dir"`
		ScriptPath      string `json:"script_path"`
		ProfilePath     string `json:"profile_path"`
		LastLogon       time.Time `json:"last_logon"`
		PasswordLastSet time.Time `json:"password_last_set"`
		LoginCount      uint16 `json:"login_count"`
		LMHash          string `json:"lm_hash"`
		NTHash          string `json:"nt_hash"`
	}{
		Username:        a.Username,
		FullName:        a.FullName,
		Comment:         a.Comment,
		HomeDir:         a.HomeDir,
		ScriptPath:      a.ScriptPath,
		ProfilePath:     a.ProfilePath,
		LastLogon:       a.LastLogon,
		PasswordLastSet: a.PasswordLastSet,
		LoginCount:      a.LoginCount,
		LMHash:          hex.EncodeToString(a.LMHash),
		NTHash:          hex.EncodeToString(a.NTHash),
	})
	return record.RegistryEntry{
		ParentKey: `SAM\Domains\Account\Users`,
		Name:      fmt.Sprintf("%d", a.RID),
		Timestamp: a.PasswordLastSet,
		IsKey:     false,
		Type:      "SamAccount",
		Content:   string(content),
	}
}

func (h *Hive) analyzeSecrets(keys *LsaKeySet) []record.RegistryEntry {
	secrets, err := h.FindKey(securitySecretsPath...)
	if err != nil {
		return nil
	}
	names, err := h.Subkeys(secrets)
	if err != nil {
		return nil
	}
	var out []record.RegistryEntry
	for _, n := range names {
		curr, err := h.FindKey(append(append([]string{}, securitySecretsPath...), n.name, "CurrVal")...)
		if err != nil {
			continue
		}
		vk, ok, err := h.ValueByName(curr, "(default)")
		if err != nil || !ok {
			continue
		}
		plain, err := keys.DecryptSecret(vk.data)
		if err != nil {
			continue // spec.md §7 kind 4: degrade this one secret
		}
		out = append(out, record.RegistryEntry{
			ParentKey: `SECURITY\Policy\Secrets`,
			Name:      n.name,
			Timestamp: n.lastWrite,
			IsKey:     false,
			Type:      "LsaSecret",
			RawHex:    hex.EncodeToString(plain),
		})
	}
	return out
}

func (h *Hive) analyzeCache(keys *LsaKeySet) []record.RegistryEntry {
	secrets, err := h.FindKey(securitySecretsPath...)
	if err != nil {
		return nil
	}
	nlkmKey, err := h.FindKey(append(append([]string{}, securitySecretsPath...), "NL$KM", "CurrVal")...)
	if err != nil {
		return nil
	}
	vk, ok, err := h.ValueByName(nlkmKey, "(default)")
	if err != nil || !ok {
		return nil
	}
	nlkm, err := keys.DecryptSecret(vk.data)
	if err != nil {
		return nil
	}
	_ = secrets

	cache, err := h.FindKey(securityCachePath...)
	if err != nil {
		return nil
	}
	entries, err := h.Subkeys(cache)
	if err != nil {
		return nil
	}
	var out []record.RegistryEntry
	for _, e := range entries {
		vk, ok, err := h.ValueByName(e, "(default)")
		if err != nil || !ok {
			continue
		}
		rec, err := DecryptNLRecord(vk.data, nlkm, keys.preVista)
		if err != nil {
			continue
		}
		content, _ := json.Marshal(rec)
		out = append(out, record.RegistryEntry{
			ParentKey: `SECURITY\Cache`,
			Name:      rec.Username,
			IsKey:     false,
			Type:      "DomainCacheEntry",
			Content:   string(content),
		})
	}
	return out
}
