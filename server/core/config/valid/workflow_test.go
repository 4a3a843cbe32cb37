package valid_test

import (
	"testing"

	"github.com/greenlightci/greenlight/server/core/config/valid"
	. "github.com/greenlightci/greenlight/testing"
)

func levelIDs(levels [][]valid.Job) [][]string {
	var ids [][]string
	for _, level := range levels {
		var names []string
		for _, job := range level {
			names = append(names, job.ID)
		}
		ids = append(ids, names)
	}
	return ids
}

func TestJobLevels(t *testing.T) {
	cases := []struct {
		description string
		jobs        []valid.Job
		exp         [][]string
	}{
		{
			"independent jobs share one level",
			[]valid.Job{{ID: "build"}, {ID: "lint"}},
			[][]string{{"build", "lint"}},
		},
		{
			"linear chain",
			[]valid.Job{
				{ID: "build"},
				{ID: "deploy", Needs: []string{"test"}},
				{ID: "test", Needs: []string{"build"}},
			},
			[][]string{{"build"}, {"test"}, {"deploy"}},
		},
		{
			"diamond",
			[]valid.Job{
				{ID: "build"},
				{ID: "integration", Needs: []string{"build"}},
				{ID: "release", Needs: []string{"integration", "unit"}},
				{ID: "unit", Needs: []string{"build"}},
			},
			[][]string{{"build"}, {"integration", "unit"}, {"release"}},
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			w := valid.Workflow{Jobs: c.jobs}
			Equals(t, c.exp, levelIDs(w.JobLevels()))
		})
	}
}

func TestJob_Lookup(t *testing.T) {
	w := valid.Workflow{Jobs: []valid.Job{{ID: "build"}, {ID: "test"}}}

	job, ok := w.Job("test")
	Assert(t, ok, "job should exist")
	Equals(t, "test", job.ID)

	_, ok = w.Job("deploy")
	Assert(t, !ok, "job should not exist")
}
