// Package runner executes command lines against the control machine and
// captures their exit status and output.
//
// Two implementations are provided. LocalRunner spawns the command through a
// local shell and kills the whole process group when the timeout elapses.
// SSHRunner runs the same command line over an SSH session on a remote
// control machine, which is useful when the remote-execution tool and its
// inventory live on a bastion host.
//
// Neither implementation treats a non-zero exit status as an error. Callers
// receive a Result and decide what it means; see package classify.
//
// Basic usage:
//
//	r := runner.NewLocalRunner(runner.LocalConfig{})
//	res, err := r.Run(ctx, runner.Request{
//		Command: "ansible 10.0.0.5 -m ping",
//		Timeout: time.Minute,
//	})
//	if err != nil {
//		// the command never ran
//	}
//	fmt.Println(res.ExitCode, res.Output)
package runner
