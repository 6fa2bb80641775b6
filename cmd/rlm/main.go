// Command rlm delegates work to recursive, role-specialised sub-agents.
package main

func main() {
	Execute()
}
