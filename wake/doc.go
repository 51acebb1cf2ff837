/*
Package wake provides Wake Services: power-state-aware one-shot alarms that
call back into the process after a delay even if the host spent part of that
delay suspended.

A Service hands out a Handle per registration and invokes the registration's
Callback exactly once, asynchronously, unless the registration is canceled
first. Canceling a registration that already fired is a no-op.

AlarmService implements the bookkeeping shared by every backend (handle
allocation, exactly-once delivery, callback dispatch) and delegates the actual
timing to an AlarmFunc:

  - boottime: a Linux timerfd on CLOCK_BOOTTIME_ALARM (or CLOCK_BOOTTIME when
    the process lacks CAP_WAKE_ALARM), which keeps counting while suspended.
  - wallclock: a monotonic timer re-checked against the wall clock, so time
    spent suspended still counts towards the deadline.
  - monotonic: a plain runtime timer, for hosts that never suspend.
  - manual: fires only when told to; see ManualService.

Handles are named "<action>.<id>", where id is the lowest id not held by an
outstanding registration of the same service.
*/
package wake
