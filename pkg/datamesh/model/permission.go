package model

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/lakeformation/types"
)

// Permission is one of the fixed Lake Formation permission tokens supported
// for data product grants.
type Permission string

const (
	PermissionAll                Permission = "ALL"
	PermissionSelect             Permission = "SELECT"
	PermissionInsert             Permission = "INSERT"
	PermissionAlter              Permission = "ALTER"
	PermissionDelete             Permission = "DELETE"
	PermissionDescribe           Permission = "DESCRIBE"
	PermissionCreateTable        Permission = "CREATE_TABLE"
	PermissionDataLocationAccess Permission = "DATA_LOCATION_ACCESS"
)

func (p Permission) Valid() bool {
	switch p {
	case PermissionAll, PermissionSelect, PermissionInsert, PermissionAlter,
		PermissionDelete, PermissionDescribe, PermissionCreateTable, PermissionDataLocationAccess:
		return true
	}
	return false
}

func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}

func ParsePermissions(ss []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(ss))
	for _, s := range ss {
		p, err := ParsePermission(s)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// LakeFormation converts the permission into the SDK enum.
func (p Permission) LakeFormation() types.Permission {
	return types.Permission(p)
}

// LakeFormationPermissions converts a permission set into SDK enums.
func LakeFormationPermissions(perms []Permission) []types.Permission {
	out := make([]types.Permission, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.LakeFormation())
	}
	return out
}

// WithDescribe returns perms with DESCRIBE added when absent. Every grant
// carries at least implicit visibility on the resource.
func WithDescribe(perms []Permission) []Permission {
	for _, p := range perms {
		if p == PermissionDescribe {
			return perms
		}
	}
	out := make([]Permission, len(perms), len(perms)+1)
	copy(out, perms)
	return append(out, PermissionDescribe)
}

// ContainsPermission reports whether perms includes p.
func ContainsPermission(perms []Permission, p Permission) bool {
	for _, q := range perms {
		if q == p {
			return true
		}
	}
	return false
}

// PermissionStrings renders a permission set for persistence and logging.
func PermissionStrings(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}
