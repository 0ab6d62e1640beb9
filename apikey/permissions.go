package apikey

import (
	"sort"

	"github.com/saiset-co/sai-org-registry/types"
)

type Permission string

const (
	PermissionRead       Permission = "read"
	PermissionWrite      Permission = "write"
	PermissionAdmin      Permission = "admin"
	PermissionStatistics Permission = "statistics"
)

var knownPermissions = map[Permission]struct{}{
	PermissionRead:       {},
	PermissionWrite:      {},
	PermissionAdmin:      {},
	PermissionStatistics: {},
}

func (p Permission) Valid() bool {
	_, ok := knownPermissions[p]
	return ok
}

// ParsePermissions validates names against the closed permission set and
// returns them deduplicated and sorted.
func ParsePermissions(names []string) ([]Permission, error) {
	seen := make(map[Permission]struct{}, len(names))
	out := make([]Permission, 0, len(names))

	for _, name := range names {
		p := Permission(name)
		if !p.Valid() {
			return nil, types.Errorf(ErrUnknownPermission, "%q", name)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func missingPermissions(granted, required []Permission) []Permission {
	have := make(map[Permission]struct{}, len(granted))
	for _, p := range granted {
		have[p] = struct{}{}
	}

	var missing []Permission
	for _, p := range required {
		if _, ok := have[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
