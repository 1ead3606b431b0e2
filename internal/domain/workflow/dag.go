package workflow

// Dependency helpers over a task list. All of these are iterative with an
// explicit terminal set — no recursion, so arbitrarily large task graphs are
// safe.

// IndependentTasks returns the indices of pending tasks with no dependencies.
func IndependentTasks(tasks []Task) []int {
	var idx []int
	for i := range tasks {
		if tasks[i].Status == TaskPending && len(tasks[i].DependsOn) == 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// DependentTasks returns the indices of pending tasks that have at least one
// dependency, in listed order.
func DependentTasks(tasks []Task) []int {
	var idx []int
	for i := range tasks {
		if tasks[i].Status == TaskPending && len(tasks[i].DependsOn) > 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// DepsCompleted reports whether every dependency of tasks[i] completed.
func DepsCompleted(tasks []Task, i int) bool {
	completed := make(map[string]bool, len(tasks))
	for j := range tasks {
		if tasks[j].Status == TaskCompleted {
			completed[tasks[j].Worker] = true
		}
	}
	for _, dep := range tasks[i].DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// DepsTerminal reports whether every dependency of tasks[i] reached a
// terminal state, regardless of success.
func DepsTerminal(tasks []Task, i int) bool {
	terminal := make(map[string]bool, len(tasks))
	for j := range tasks {
		if tasks[j].Status.IsTerminal() {
			terminal[tasks[j].Worker] = true
		}
	}
	for _, dep := range tasks[i].DependsOn {
		if !terminal[dep] {
			return false
		}
	}
	return true
}

// RunningCount returns how many tasks are currently running.
func RunningCount(tasks []Task) int {
	n := 0
	for i := range tasks {
		if tasks[i].Status == TaskRunning {
			n++
		}
	}
	return n
}

// AllTerminal returns true once every task reached a terminal state.
func AllTerminal(tasks []Task) bool {
	for i := range tasks {
		if !tasks[i].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// AnyFailed returns true if at least one task failed.
func AnyFailed(tasks []Task) bool {
	for i := range tasks {
		if tasks[i].Status == TaskFailed {
			return true
		}
	}
	return false
}
