// Package policy holds the pure decision functions of the membership core:
// the access-data state machine, deadline arithmetic, overdue sweep
// eligibility, ownership succession and the removal/capacity rules.
//
// Nothing here touches storage or the clock; callers pass the current time
// and the rows they loaded.
package policy
