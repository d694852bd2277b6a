package detector

import "github.com/castellan/castellan/pkg/models"

type tableEntry struct {
	eventType  models.EventType
	riskLevel  models.RiskLevel
	confidence int
	mitre      []string
	actions    []string
	summary    string
}

// builtinTable is the static classification table for well-known Windows
// security events. Channels use the exact names the event log reports.
func builtinTable() map[tableKey]tableEntry {
	return map[tableKey]tableEntry{
		{"Security", 4624}: {
			eventType:  models.EventTypeAuthSuccess,
			riskLevel:  models.RiskLow,
			confidence: 90,
			mitre:      []string{"T1078"},
			actions:    []string{"Verify logon source if unexpected"},
			summary:    "An account was successfully logged on",
		},
		{"Security", 4625}: {
			eventType:  models.EventTypeAuthFailure,
			riskLevel:  models.RiskMedium,
			confidence: 85,
			mitre:      []string{"T1110"},
			actions: []string{
				"Check for repeated failures from the same source",
				"Confirm the account is not locked out",
			},
			summary: "An account failed to log on",
		},
		{"Security", 4648}: {
			eventType:  models.EventTypeAuthSuccess,
			riskLevel:  models.RiskMedium,
			confidence: 80,
			mitre:      []string{"T1078", "T1550"},
			actions:    []string{"Review explicit credential use for lateral movement"},
			summary:    "A logon was attempted using explicit credentials",
		},
		{"Security", 4672}: {
			eventType:  models.EventTypePrivilegeEscalation,
			riskLevel:  models.RiskHigh,
			confidence: 90,
			mitre:      []string{"T1078.002", "T1548"},
			actions: []string{
				"Confirm the account is approved for administrative logon",
				"Review subsequent activity for this session",
			},
			summary: "Special privileges assigned to new logon",
		},
		{"Security", 4688}: {
			eventType:  models.EventTypeProcessCreation,
			riskLevel:  models.RiskLow,
			confidence: 85,
			mitre:      []string{"T1059"},
			actions:    []string{"Inspect command line for suspicious arguments"},
			summary:    "A new process has been created",
		},
		{"Security", 4697}: {
			eventType:  models.EventTypeServiceInstallation,
			riskLevel:  models.RiskHigh,
			confidence: 88,
			mitre:      []string{"T1543.003"},
			actions: []string{
				"Verify the service binary path and signer",
				"Check change management for an approved install",
			},
			summary: "A service was installed in the system",
		},
		{"Security", 4698}: {
			eventType:  models.EventTypeScheduledTask,
			riskLevel:  models.RiskHigh,
			confidence: 85,
			mitre:      []string{"T1053.005"},
			actions:    []string{"Review the task action and trigger for persistence"},
			summary:    "A scheduled task was created",
		},
		{"Security", 4719}: {
			eventType:  models.EventTypePolicyChange,
			riskLevel:  models.RiskHigh,
			confidence: 90,
			mitre:      []string{"T1562.002"},
			actions: []string{
				"Confirm the audit policy change was authorized",
				"Restore auditing if tampered",
			},
			summary: "System audit policy was changed",
		},
		{"Security", 4720}: {
			eventType:  models.EventTypeAccountManagement,
			riskLevel:  models.RiskMedium,
			confidence: 85,
			mitre:      []string{"T1136.001"},
			actions:    []string{"Verify the new account against provisioning records"},
			summary:    "A user account was created",
		},
		{"Security", 4724}: {
			eventType:  models.EventTypeAccountManagement,
			riskLevel:  models.RiskMedium,
			confidence: 80,
			mitre:      []string{"T1098"},
			actions:    []string{"Confirm the password reset was requested"},
			summary:    "An attempt was made to reset an account's password",
		},
		{"Security", 4732}: {
			eventType:  models.EventTypeAccountManagement,
			riskLevel:  models.RiskHigh,
			confidence: 85,
			mitre:      []string{"T1098", "T1078"},
			actions: []string{
				"Verify the group membership change was approved",
				"Review the added member's recent activity",
			},
			summary: "A member was added to a security-enabled local group",
		},
		{"Security", 1102}: {
			eventType:  models.EventTypePolicyChange,
			riskLevel:  models.RiskCritical,
			confidence: 95,
			mitre:      []string{"T1070.001"},
			actions: []string{
				"Treat as active tampering until proven otherwise",
				"Preserve remaining logs and isolate the host",
			},
			summary: "The audit log was cleared",
		},
		{"System", 7045}: {
			eventType:  models.EventTypeServiceInstallation,
			riskLevel:  models.RiskHigh,
			confidence: 85,
			mitre:      []string{"T1543.003"},
			actions:    []string{"Verify the installed service binary and signer"},
			summary:    "A new service was installed",
		},
		{"Microsoft-Windows-PowerShell/Operational", 4104}: {
			eventType:  models.EventTypePowerShellExecution,
			riskLevel:  models.RiskMedium,
			confidence: 80,
			mitre:      []string{"T1059.001"},
			actions: []string{
				"Inspect the script block for obfuscation or download cradles",
			},
			summary: "PowerShell script block executed",
		},
		{"Microsoft-Windows-Sysmon/Operational", 3}: {
			eventType:  models.EventTypeNetworkConnection,
			riskLevel:  models.RiskLow,
			confidence: 75,
			mitre:      []string{"T1071"},
			actions:    []string{"Check the destination against threat intelligence"},
			summary:    "Network connection detected",
		},
	}
}
