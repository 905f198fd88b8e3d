package models

import "strconv"

// Record is one subscriber entry as stored inside a partition hash. Records
// are written by the bulk loader and are immutable once written; a later load
// for the same number simply overwrites the previous value (last-write-wins,
// no merge).
type Record struct {
	Name         string `json:"name"`
	GuardianName string `json:"guardian_name,omitempty"`
	Number       string `json:"number"`
	AltNumber    string `json:"alt_number,omitempty"`
	IDNumber     string `json:"id_number,omitempty"`
	AltIDNumber  string `json:"alt_id_number,omitempty"`
	Age          string `json:"age,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Address      string `json:"address,omitempty"`
	District     string `json:"district,omitempty"`
	Pincode      string `json:"pincode,omitempty"`
	State        string `json:"state,omitempty"`
	Town         string `json:"town,omitempty"`
	Source       string `json:"source"`
}

// Credential is the decoded form of an apikey:<key> hash. The hash itself is
// the source of truth; this struct is a read-time view shared by the quota
// ledger and the admin surface. Encoding contract: limit/used are integer
// strings, unlimited/isActive are "true"/"false", timestamps are epoch
// milliseconds as strings.
type Credential struct {
	Key         string
	Limit       int64
	Used        int64
	Unlimited   bool
	IsActive    bool
	Name        string
	Email       string
	CreatedAt   int64
	LastUsed    int64
	LastReset   int64
	LastUpdated int64
}

// Remaining returns the unused request budget, or -1 for unlimited keys.
func (c *Credential) Remaining() int64 {
	if c.Unlimited {
		return -1
	}
	if c.Limit < c.Used {
		return 0
	}
	return c.Limit - c.Used
}

// CredentialFromHash decodes a HGETALL result. An empty map (or one without
// a limit field) means the key does not exist; callers check for that before
// calling. Missing used counts as zero, matching how keys are generated.
func CredentialFromHash(key string, h map[string]string) *Credential {
	c := &Credential{
		Key:       key,
		Limit:     parseInt64(h["limit"]),
		Used:      parseInt64(h["used"]),
		Unlimited: h["unlimited"] == "true",
		IsActive:  h["isActive"] == "true",
		Name:      h["name"],
		Email:     h["email"],
	}
	c.CreatedAt = parseInt64(h["createdAt"])
	c.LastUsed = parseInt64(h["lastUsed"])
	c.LastReset = parseInt64(h["lastReset"])
	c.LastUpdated = parseInt64(h["lastUpdated"])
	return c
}

// HashExists reports whether a HGETALL result describes a real credential.
func HashExists(h map[string]string) bool {
	_, ok := h["limit"]
	return ok
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatBool renders a boolean in the credential hash encoding.
func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// SourceRecord is a row in an upstream MySQL feed the loader can ingest.
// Only the loader touches this table; the serving path never reads SQL.
type SourceRecord struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"type:varchar(255)"`
	GuardianName string `gorm:"type:varchar(255)"`
	Number       string `gorm:"type:varchar(20);index"`
	AltNumber    string `gorm:"type:varchar(20)"`
	IDNumber     string `gorm:"type:varchar(64)"`
	AltIDNumber  string `gorm:"type:varchar(64)"`
	Age          string `gorm:"type:varchar(8)"`
	Gender       string `gorm:"type:varchar(16)"`
	Address      string `gorm:"type:text"`
	District     string `gorm:"type:varchar(128)"`
	Pincode      string `gorm:"type:varchar(16)"`
	State        string `gorm:"type:varchar(128)"`
	Town         string `gorm:"type:varchar(128)"`
}
