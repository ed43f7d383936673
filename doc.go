// Package blueteam audits Linux hosts for signs of compromise.
//
// blueteam inspects the local machine or a fleet of SSH hosts and reports
// sudoers grants, cron tables, packaged files that fail verification, extra
// root accounts, and a process tree annotated with package ownership.
package blueteam
