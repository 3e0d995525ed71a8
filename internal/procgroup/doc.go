// Package procgroup owns the kernel resource that ties the supervised
// program and every process it spawns to the lifetime of the wrapper.
//
// On Windows this is a job object created with kill-on-close; the wrapper
// joins the job before spawning, so every descendant inherits membership
// and closing the handle (or the wrapper dying) terminates them all.
//
// Linux has no job objects. The wrapper instead becomes a child subreaper,
// starts the supervised program in its own process group with a parent
// death signal, and on Kill or Release sweeps /proc for every process in a
// tracked process group, every descendant of a tracked process and every
// orphan that was reparented to the wrapper. Sweeps repeat until no member
// is left alive, so daemonizing grandchildren that left the process group
// are still found through their parent chain or their reparenting.
//
// Other unix systems only get the process-group kill.
package procgroup
