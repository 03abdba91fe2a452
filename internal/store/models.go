package store

// File is the sidecar record identifying one indexed gzip file (spec §3,
// "File record").
type File struct {
	ID          int64  `db:"id"`
	LogicalName string `db:"logical_name"`
	ByteSize    int64  `db:"byte_size"`
	Mtime       int64  `db:"mtime"`
	SHA256      string `db:"sha256"`
}

// Metadata is the one-per-file summary row (spec §3, "File metadata
// record").
type Metadata struct {
	FileID         int64 `db:"file_id"`
	CheckpointSize int64 `db:"checkpoint_size"`
	TotalLines     int64 `db:"total_lines"`
	TotalUCSize    int64 `db:"total_uc_size"`
}

// Checkpoint is one snapshot of the gzip decoder's state (spec §3,
// "Checkpoint"). DictCompressed holds the 32 KiB window, deflate-compressed
// at best-compression; callers decompress it before priming an Inflater.
type Checkpoint struct {
	FileID         int64  `db:"file_id"`
	CheckpointIdx  int64  `db:"checkpoint_idx"`
	UCOffset       int64  `db:"uc_offset"`
	UCSize         int64  `db:"uc_size"`
	COffset        int64  `db:"c_offset"`
	CSize          int64  `db:"c_size"`
	Bits           int    `db:"bits"`
	PrimeByte      byte   `db:"prime_byte"`
	DictCompressed []byte `db:"dict_compressed"`
	NumLines       int64  `db:"num_lines"`
	LastLineNum    int64  `db:"last_line_num"`
}
