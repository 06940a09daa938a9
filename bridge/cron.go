package bridge

import (
	"context"
	"fmt"

	"github.com/basket/pocketclaw/internal/cron"
	"github.com/basket/pocketclaw/internal/shared"
)

// CronJob is one scheduled job as seen by the host. NextRunMS is zero
// when the job has no computed next run (paused one-shots).
type CronJob struct {
	ID         string
	Expression string
	Command    string
	NextRunMS  int64
	LastRunMS  *int64
	LastStatus *string
	Paused     bool
	OneShot    bool
}

func toCronJob(j cron.Job) CronJob {
	out := CronJob{
		ID:         j.ID,
		Expression: j.Expression,
		Command:    j.Command,
		LastRunMS:  shared.EpochMSPtr(j.LastRun),
		LastStatus: j.LastStatus,
		Paused:     j.Paused,
		OneShot:    j.OneShot,
	}
	if j.NextRun != nil {
		out.NextRunMS = shared.EpochMS(*j.NextRun)
	}
	return out
}

// ListCronJobs returns every scheduled job.
func ListCronJobs() ([]CronJob, error) {
	return guardErr(func() ([]CronJob, error) {
		jobs, err := rt().Jobs()
		if err != nil {
			return nil, err
		}
		list, err := jobs.List(context.Background())
		if err != nil {
			return nil, err
		}
		out := make([]CronJob, 0, len(list))
		for _, j := range list {
			out = append(out, toCronJob(j))
		}
		return out, nil
	})
}

// GetCronJob returns one job by id, or nil when no such job exists.
func GetCronJob(id string) (*CronJob, error) {
	return guardErr(func() (*CronJob, error) {
		jobs, err := rt().Jobs()
		if err != nil {
			return nil, err
		}
		j, err := jobs.Get(context.Background(), id)
		if err != nil {
			return nil, err
		}
		if j == nil {
			return nil, nil
		}
		out := toCronJob(*j)
		return &out, nil
	})
}

// AddCronJob registers a recurring job with a 5-field cron expression and
// returns the stored record.
func AddCronJob(expression, command string) (CronJob, error) {
	return guardErr(func() (CronJob, error) {
		jobs, err := rt().Jobs()
		if err != nil {
			return CronJob{}, err
		}
		j, err := jobs.Add(context.Background(), expression, command)
		if err != nil {
			return CronJob{}, &Error{Kind: KindConfig, Detail: err.Error()}
		}
		return toCronJob(j), nil
	})
}

// AddOneShotJob registers a job that fires once after the given delay
// (e.g. "30s", "5m", "2h") and then removes itself.
func AddOneShotJob(delay, command string) (CronJob, error) {
	return guardErr(func() (CronJob, error) {
		jobs, err := rt().Jobs()
		if err != nil {
			return CronJob{}, err
		}
		j, err := jobs.AddOnce(context.Background(), delay, command)
		if err != nil {
			return CronJob{}, &Error{Kind: KindConfig, Detail: err.Error()}
		}
		return toCronJob(j), nil
	})
}

// RemoveCronJob deletes a job by id. Unknown ids are an error.
func RemoveCronJob(id string) error {
	return guard(func() error {
		jobs, err := rt().Jobs()
		if err != nil {
			return err
		}
		found, err := jobs.Remove(context.Background(), id)
		return requireJob(found, err, id)
	})
}

// PauseCronJob stops a job from firing until resumed.
func PauseCronJob(id string) error {
	return setCronJobPaused(id, true)
}

// ResumeCronJob re-enables a paused job.
func ResumeCronJob(id string) error {
	return setCronJobPaused(id, false)
}

func setCronJobPaused(id string, paused bool) error {
	return guard(func() error {
		jobs, err := rt().Jobs()
		if err != nil {
			return err
		}
		found, err := jobs.SetPaused(context.Background(), id, paused)
		return requireJob(found, err, id)
	})
}

// RunCronJobNow moves a job's next run to the present so the scheduler
// fires it on its next tick.
func RunCronJobNow(id string) error {
	return guard(func() error {
		jobs, err := rt().Jobs()
		if err != nil {
			return err
		}
		found, err := jobs.RunNow(context.Background(), id)
		return requireJob(found, err, id)
	})
}

// requireJob converts a did-nothing row update into a Config error.
func requireJob(found bool, err error, id string) error {
	if err != nil {
		return err
	}
	if !found {
		return &Error{Kind: KindConfig, Detail: fmt.Sprintf("no such job: %s", id)}
	}
	return nil
}
