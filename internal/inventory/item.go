package inventory

import (
	"regexp"
	"strings"
	"time"
)

// ItemType classifies an inventory item.
type ItemType string

const (
	TypeDriver        ItemType = "DRIVER"
	TypeService       ItemType = "SERVICE"
	TypeDriverPackage ItemType = "DRIVER_PACKAGE"
	TypeApp           ItemType = "APP"
)

var itemIDPattern = regexp.MustCompile(`^(drv:|svc:|pkg:|app:)[A-Za-z0-9._:\-]+$`)

// ValidID reports whether id follows the item id grammar
// (drv:|svc:|pkg:|app:) followed by an identifier.
func ValidID(id string) bool {
	return itemIDPattern.MatchString(id)
}

// IDSuffix returns the trimmed text after the first colon of an item id,
// or "" when there is none.
func IDSuffix(id string) string {
	i := strings.IndexByte(id, ':')
	if i < 0 || i >= len(id)-1 {
		return ""
	}
	return strings.TrimSpace(id[i+1:])
}

// Signature describes the code-signing state of an item.
type Signature struct {
	Signed      bool   `json:"signed"`
	Signer      string `json:"signer,omitempty"`
	IsMicrosoft bool   `json:"isMicrosoft"`
	IsWHQL      bool   `json:"isWhql"`
}

// Item is one collected artifact. Items are read-only once a snapshot
// is persisted.
type Item struct {
	ID                       string     `json:"itemId"`
	Type                     ItemType   `json:"itemType"`
	DisplayName              string     `json:"displayName"`
	Vendor                   string     `json:"vendor,omitempty"`
	Provider                 string     `json:"provider,omitempty"`
	Version                  string     `json:"version,omitempty"`
	DriverInf                string     `json:"driverInf,omitempty"`
	DriverStorePublishedName string     `json:"driverStorePublishedName,omitempty"`
	DeviceHardwareIDs        []string   `json:"deviceHardwareIds,omitempty"`
	Present                  *bool      `json:"present,omitempty"`
	Running                  *bool      `json:"running,omitempty"`
	StartType                *int       `json:"startType,omitempty"`
	Signature                *Signature `json:"signature,omitempty"`
	Paths                    []string   `json:"paths,omitempty"`
	InstallDate              *time.Time `json:"installDate,omitempty"`
	LastLoadedDate           *time.Time `json:"lastLoadedDate,omitempty"`
	Dependencies             []string   `json:"dependencies,omitempty"`
	UninstallCommand         string     `json:"uninstallCommand,omitempty"`
}

// Platform is the machine summary captured alongside a scan.
type Platform struct {
	MotherboardVendor  string `json:"motherboardVendor,omitempty"`
	MotherboardProduct string `json:"motherboardProduct,omitempty"`
	CPU                string `json:"cpu,omitempty"`
	OSVersion          string `json:"osVersion,omitempty"`
}

// Summary counts items per type.
type Summary struct {
	Drivers  int      `json:"drivers"`
	Services int      `json:"services"`
	Packages int      `json:"packages"`
	Apps     int      `json:"apps"`
	Platform Platform `json:"platform"`
}

// Snapshot is an immutable result of one scan.
type Snapshot struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	Summary   Summary   `json:"summary"`
	Items     []Item    `json:"items"`
}

// Item returns the item with the given id.
func (s *Snapshot) Item(id string) (Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Summarize counts items per type.
func Summarize(items []Item, platform Platform) Summary {
	s := Summary{Platform: platform}
	for _, it := range items {
		switch it.Type {
		case TypeDriver:
			s.Drivers++
		case TypeService:
			s.Services++
		case TypeDriverPackage:
			s.Packages++
		case TypeApp:
			s.Apps++
		}
	}
	return s
}

// FactSource records who supplied a user fact.
type FactSource string

const (
	FactSourceUser FactSource = "USER"
	FactSourceAI   FactSource = "AI"
)

// UserFact is a piece of migration context ("old_platform_vendor" = "intel").
// Facts are append-only.
type UserFact struct {
	SessionID string     `json:"sessionId"`
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	Source    FactSource `json:"source"`
	CreatedAt time.Time  `json:"createdAt"`
}
