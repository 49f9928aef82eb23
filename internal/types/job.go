package types

import "time"

// BuildJob is the unit of work handed to the build queue. It carries only
// the repo primary key; workers reload the repo from the store.
type BuildJob struct {
	ID     string
	RepoID int64
	Delay  time.Duration
	Queue  string
}

func QueueForRepoType(repoType RepoType) string {
	switch repoType {
	case RepoTypeRPM:
		return QueueBuildRPM
	case RepoTypeDeb:
		return QueueBuildDeb
	}
	return ""
}

// Command is one external tool invocation.
type Command struct {
	Name string
	Args []string
}

func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}
