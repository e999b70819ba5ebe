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

package record

import "time"

// Entity types below carry `db:"..."` tags consumed by
// internal/store.BuildSchema. Tag grammar: `db:"column_name[,pk][,index][,nocase]"`.
// A field of type time.Time always expands to two columns
// (`column_name` ISO text, `column_name_unix` float) per spec.md §3.

// Partition is the per-slot identity and metadata record populated while
// iterating a volume (spec.md §3 "Partition").
type Partition struct {
	SlotNum        int64  `db:"slot_num,pk"`
	ByteOffset     int64  `db:"byte_offset"`
	ByteLength     int64  `db:"byte_length"`
	SectorSize     int64  `db:"sector_size"`
	FSTypeID       string `db:"fs_type_id,index"`
	Allocated      bool   `db:"allocated"`
	IsCrypted      bool   `db:"is_crypted"`
	Description    string `db:"description"`
	PartName       string `db:"part_name,index"`
}

// File is the normalized file-system entry (spec.md §3 "File"). ADS
// pseudo-children reuse this struct with Name set to "<name>:<stream>".
type File struct {
	MetaAddr      int64     `db:"meta_addr,pk"`
	MetaSeq       int64     `db:"meta_seq,pk"`
	Name          string    `db:"name,pk,index"`
	ParentFolder  string    `db:"parent_folder,pk,index"`
	Size          int64     `db:"size,pk"`
	ParentAddr    int64     `db:"parent_addr"`
	ParentSeq     int64     `db:"parent_seq"`
	IsDir         bool      `db:"is_dir"`
	IsLink        bool      `db:"is_link"`
	Allocated     bool      `db:"allocated"`
	CrTime        time.Time `db:"crtime,pk"`
	MTime         time.Time `db:"mtime,pk"`
	ATime         time.Time `db:"atime,pk"`
	CTime         time.Time `db:"ctime,pk"`
	FNCrTime      time.Time `db:"fn_crtime"`
	FNMTime       time.Time `db:"fn_mtime"`
	FNATime       time.Time `db:"fn_atime"`
	FNCTime       time.Time `db:"fn_ctime"`
	MD5           string    `db:"md5"`
	SHA1          string    `db:"sha1"`
	SHA256        string    `db:"sha256"`
	TLSH          string    `db:"tlsh"`
	FileType      string    `db:"file_type,index"`
	Source        string    `db:"source,index"` // "filesystem" or "vss#N"
}

// FullName implements the spec.md §3 invariant
// full_name = parent_folder + "/" + name (root: parent_folder="", name="/").
func (f File) FullName() string {
	if f.ParentFolder == "" {
		return f.Name
	}
	return f.ParentFolder + "/" + f.Name
}

// Event is a normalized Windows event-log record (spec.md §3 "Event").
type Event struct {
	Channel       string    `db:"channel,pk,index"`
	Computer      string    `db:"computer,pk"`
	EventRecordID int64     `db:"event_record_id,pk"`
	Timestamp     time.Time `db:"timestamp,index"`
	EventID       int64     `db:"event_id,index"`
	Opcode        int64     `db:"opcode"`
	Level         int64     `db:"level"`
	UserID        string    `db:"user_id"`
	Provider      string    `db:"provider,index"`
	Data          string    `db:"data"` // JSON blob
	Carved        bool      `db:"carved"`
}

// USNRecordV2 is a normalized $UsnJrnl:$J V2 entry (spec.md §3 "USNRecordV2").
type USNRecordV2 struct {
	USN          int64     `db:"usn,pk"`
	Timestamp    time.Time `db:"timestamp,index"`
	FileAddr     int64     `db:"file_addr,index"`
	FileSeq      int64     `db:"file_seq"`
	ParentAddr   int64     `db:"parent_addr"`
	ParentSeq    int64     `db:"parent_seq"`
	Reason       string    `db:"reason"`
	SourceInfo   int64     `db:"source_info"`
	SecurityID   int64     `db:"security_id"`
	FileAttrs    string    `db:"file_attrs"`
	Name         string    `db:"name,index"`
	ParentFolder string    `db:"parent_folder"`
	Carved       bool      `db:"carved"`
}

// PrefetchFile is a normalized SCCA prefetch trace (spec.md §3 "PrefetchFile").
type PrefetchFile struct {
	ExecutableFilename string    `db:"executable_filename,pk,index"`
	PrefetchHash       int64     `db:"prefetch_hash,pk"`
	LastRun            time.Time `db:"last_run,pk"`
	RunCount           int64     `db:"run_count"`
	ParentFolder       string    `db:"parent_folder"`
	ExecutableAddr     int64     `db:"executable_addr"`
	ExecutableSeq      int64     `db:"executable_seq"`
	Metrics            string    `db:"metrics"` // JSON list of referenced files
	RunTimes           string    `db:"run_times"` // JSON array, up to 8 historical run-times
	Carved             bool      `db:"carved"`
}

// Executes is the one-row-per-nonzero-run-time companion to PrefetchFile
// (spec.md §3 "Executes").
type Executes struct {
	ExecutableFilename string    `db:"executable_filename,pk,index"`
	PrefetchHash       int64     `db:"prefetch_hash,pk"`
	RunTime            time.Time `db:"run_time,pk"`
}

// LnkFile is a normalized Windows shortcut (spec.md §3 "LnkFile").
type LnkFile struct {
	TargetLocalPath       string    `db:"target_local_path,pk"`
	TargetRelativePath    string    `db:"target_relative_path,pk"`
	CommandLineArguments  string    `db:"command_line_arguments,pk"`
	TargetATime           time.Time `db:"target_atime,pk"`
	TargetCTime           time.Time `db:"target_ctime,pk"`
	TargetCrTime          time.Time `db:"target_crtime,pk"`
	TrackerVolID          string    `db:"tracker_vol_id,pk"`
	TrackerFileID         string    `db:"tracker_file_id,pk"`
	TargetSize            int64     `db:"target_size"`
	DriveType             string    `db:"drive_type"`
	DriveSerialNumber     string    `db:"drive_serial_number"`
	WorkingDirectory      string    `db:"working_directory"`
	Description           string    `db:"description"`
	MachineID             string    `db:"machine_id"`
	MACAddress            string    `db:"mac_address"`
	BirthCreationTime     time.Time `db:"birth_creation_time"`
	Carved                bool      `db:"carved"`
}

// RegistryEntry is a normalized hive key or value (spec.md §3 "RegistryEntry").
type RegistryEntry struct {
	ParentKey string    `db:"parent_key,pk,index"`
	Name      string    `db:"name,pk,index"`
	Timestamp time.Time `db:"timestamp"`
	IsKey     bool      `db:"is_key,index"`
	Type      string    `db:"type"`
	Content   string    `db:"content"` // JSON-encoded decoded value
	RawHex    string    `db:"raw_hex"`
	ClassName string    `db:"classname"`
	Deleted   bool      `db:"deleted,index"`
}

// Timeline is the write-only, multi-producer cross-source event log
// (spec.md §3 "Timeline").
type Timeline struct {
	Timestamp   time.Time `db:"timestamp,pk,index"`
	EventSource string    `db:"event_source,pk,index"`
	EventType   string    `db:"event_type,pk,index"`
	Param1      string    `db:"param1,pk"`
	Param2      string    `db:"param2,pk"`
	Param3      string    `db:"param3,pk"`
	Param4      string    `db:"param4,pk"`
	Message     string    `db:"message"`
}
