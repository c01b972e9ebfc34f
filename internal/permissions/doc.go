/*
Package permissions implements the capability model that gates every host API
a guest program can reach.

# Overview

WebPermissions is the contract: one check per capability class (URLs, hosts,
file opens, reads, writes, environment variables, system queries, process
execution, high resolution time). Backends:

  - Default: allows everything, for trusted guests
  - Allowlist: denies by default, mutable at runtime by the embedding host
  - Patterns: immutable glob rules compiled from a Manifest
  - Audited: decorator that logs and counts the decisions of another backend

# Allowlist Semantics

Path reads and writes need both the master switch (SetReadAll / SetWriteAll)
and membership of the path in the matching set. Open checks consult the open
sets and test read and write capability independently. The Wildcard entry
matches every key of the set it is in. Strings are stored as given; the
caller normalizes paths before allowing or checking them.

# Usage

	perms := permissions.NewAllowlist()
	perms.SetReadAll(true)
	perms.AllowRead("/srv/data/config.json")

	if _, err := perms.CheckRead("/etc/passwd", "fs.readTextFile"); err != nil {
		// errors.Is(err, permissions.ErrPermissionDenied) == true
	}

# Manifests

	m, err := permissions.LoadManifest("perms.yaml")
	perms := m.Allowlist()
*/
package permissions
