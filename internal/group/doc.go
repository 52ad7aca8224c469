// Package group supervises child processes at process-group granularity so
// that a helper and all of its descendants can be signalled and reaped as one
// unit.
//
// Every child is started as the leader of a fresh process group. Because a
// group id can be reused by the kernel once its last member exits, an inert
// holder process is placed into the group right after the leader starts and
// stays there until explicit teardown; a leader that crashes early therefore
// cannot strand its group id for an unrelated process to inherit a kill.
//
// Full group termination relies on POSIX job control and is only available
// on unix platforms.
package group
