// Command ddca runs the DDCA waker and manages plans.
//
// Usage:
//
//	ddca waker [--source chain|postgres|memory] [--dry-run] [--once]
//	ddca status [plan-id]
//	ddca plan create --owner ... --from ... --to ... --amount N --interval S --deposit N
//	ddca plan deposit|withdraw <plan-id> <amount>
//	ddca plan pause|resume|close <plan-id>
//	ddca history [plan-id] [--since 24h]
//	ddca migrate
package main

func main() {
	Execute()
}
