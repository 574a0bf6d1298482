// permission.go: permission nodes with wildcard matching
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import "strings"

// PermissionNode is a lowercase dotted permission such as
// "moderation.kick". "*" grants everything and "moderation.*" grants
// every node of the moderation module.
type PermissionNode string

func NewPermissionNode(permission string) PermissionNode {
	return PermissionNode(strings.ToLower(strings.TrimSpace(permission)))
}

// Matches reports whether holding p grants required.
func (p PermissionNode) Matches(required string) bool {
	required = strings.ToLower(strings.TrimSpace(required))
	if required == "" {
		return false
	}
	current := string(p)
	if current == required || current == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(current, ".*"); ok {
		return strings.HasPrefix(required, prefix+".")
	}
	return false
}

func (p PermissionNode) IsWildcard() bool {
	return p == "*" || strings.HasSuffix(string(p), ".*")
}

// Module returns the segment before the first dot, "" when there is none.
func (p PermissionNode) Module() string {
	if i := strings.IndexByte(string(p), '.'); i >= 0 {
		return string(p)[:i]
	}
	return ""
}

func (p PermissionNode) String() string { return string(p) }

// PermissionSet is a set of granted nodes.
type PermissionSet []PermissionNode

// Grants reports whether any node in the set matches required.
func (s PermissionSet) Grants(required string) bool {
	for _, node := range s {
		if node.Matches(required) {
			return true
		}
	}
	return false
}
