/*
Package ext installs the host APIs guests call.

Every extension that reaches outside the VM holds the narrow permission contract it needs, usually a
*hostapi.Container, and checks it on each call:

	host.fs      readTextFile, writeTextFile, readDir, stat, walk, cwd
	host.env     get
	host.sys     hostname, loadavg, osUptime, systemMemoryInfo, cpus, uid, gid, getegid, homeDir
	host.exec    run
	host.ws      connect
	fetch        global, http(s) and file URLs
	performance  now, timeOrigin
	crypto       randomUUID, hash
	host.html    select, xpath, sanitize, text
	host.stats   summary, quantile, correlation

Synchronous calls throw on failure. Asynchronous calls return promises that
the runtime's event loop settles; a denial rejects with an Error whose name
is "PermissionDenied" and whose category names the missing capability.

	container := hostapi.New(allowlist)
	client := ext.NewFetchClient(ext.DefaultFetchConfig(), logger)
	rt, err := sandbox.New(sandbox.DefaultConfig(),
		sandbox.WithExtensions(ext.All(container, client)...),
	)
*/
package ext
