package orchestrator_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/largo-chat/cluster-ops/internal/events"
	"github.com/largo-chat/cluster-ops/internal/orchestrator"
)

type scriptedPrompter struct {
	answer  bool
	prompts []string
}

func (p *scriptedPrompter) Confirm(prompt string) (bool, error) {
	p.prompts = append(p.prompts, prompt)
	return p.answer, nil
}

type recordingNotifier struct {
	events []events.StageEvent
}

func (n *recordingNotifier) Notify(event events.StageEvent) {
	n.events = append(n.events, event)
}

func succeed(name string, ran *[]string) orchestrator.Stage {
	return orchestrator.Stage{
		Name:  name,
		Class: orchestrator.Critical,
		Run: func(ctx context.Context) ([]string, error) {
			*ran = append(*ran, name)
			return nil, nil
		},
	}
}

var _ = Describe("Runner", func() {
	var (
		prompter *scriptedPrompter
		notifier *recordingNotifier
		runner   *orchestrator.Runner
		ran      []string
	)

	BeforeEach(func() {
		prompter = &scriptedPrompter{answer: true}
		notifier = &recordingNotifier{}
		runner = &orchestrator.Runner{Prompter: prompter, Notifier: notifier}
		ran = nil
	})

	It("runs every stage in order on success", func() {
		stages := []orchestrator.Stage{
			succeed("first", &ran), succeed("second", &ran), succeed("third", &ran),
		}
		result, err := runner.Run(context.Background(), stages)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(orchestrator.Succeeded))
		Expect(ran).To(Equal([]string{"first", "second", "third"}))
		Expect(result.RunID).NotTo(BeEmpty())
		Expect(notifier.events).To(HaveLen(3))
	})

	It("aborts cleanly when the operator declines", func() {
		stages := []orchestrator.Stage{
			succeed("survey", &ran),
			{
				Name:  "confirm",
				Class: orchestrator.Critical,
				Run: func(ctx context.Context) ([]string, error) {
					return nil, orchestrator.ErrDeclined
				},
			},
			succeed("mutate", &ran),
		}
		result, err := runner.Run(context.Background(), stages)
		Expect(err).NotTo(HaveOccurred(), "a declined run is not a failure")
		Expect(result.Outcome).To(Equal(orchestrator.Aborted))
		Expect(ran).To(Equal([]string{"survey"}), "nothing after the gate may run")
	})

	It("stops at a critical failure", func() {
		boom := errors.New("helm exploded")
		stages := []orchestrator.Stage{
			{
				Name:  "upgrade",
				Class: orchestrator.Critical,
				Run: func(ctx context.Context) ([]string, error) {
					return nil, boom
				},
			},
			succeed("restore", &ran),
		}
		result, err := runner.Run(context.Background(), stages)
		Expect(err).To(MatchError(ContainSubstring("helm exploded")))
		Expect(result.Outcome).To(Equal(orchestrator.Failed))
		Expect(ran).To(BeEmpty())
	})

	It("continues past an advisory failure", func() {
		stages := []orchestrator.Stage{
			{
				Name:  "verify",
				Class: orchestrator.Advisory,
				Run: func(ctx context.Context) ([]string, error) {
					return nil, errors.New("one collection missing")
				},
			},
			succeed("after", &ran),
		}
		result, err := runner.Run(context.Background(), stages)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(orchestrator.Warned))
		Expect(ran).To(Equal([]string{"after"}))
	})

	Describe("gated failures", func() {
		gatedStages := func() []orchestrator.Stage {
			return []orchestrator.Stage{
				{
					Name:  "check-resources",
					Class: orchestrator.Gated,
					Run: func(ctx context.Context) ([]string, error) {
						return nil, errors.New("2 ready nodes, cluster mode needs at least 3")
					},
				},
				succeed("after", &ran),
			}
		}

		It("continues when the operator accepts the risk", func() {
			prompter.answer = true
			result, err := runner.Run(context.Background(), gatedStages())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(orchestrator.Warned))
			Expect(ran).To(Equal([]string{"after"}))
			Expect(prompter.prompts).To(HaveLen(1))
			Expect(strings.Join(prompter.prompts, " ")).To(ContainSubstring("ready nodes"))
		})

		It("fails when the operator declines", func() {
			prompter.answer = false
			result, err := runner.Run(context.Background(), gatedStages())
			Expect(err).To(HaveOccurred())
			Expect(result.Outcome).To(Equal(orchestrator.Failed))
			Expect(ran).To(BeEmpty())
		})
	})

	It("marks a stage warned when it reports warnings", func() {
		stages := []orchestrator.Stage{
			{
				Name:  "restore",
				Class: orchestrator.Critical,
				Run: func(ctx context.Context) ([]string, error) {
					return []string{"collection docs restored without fields [aux]"}, nil
				},
			},
		}
		result, err := runner.Run(context.Background(), stages)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(orchestrator.Warned))
		Expect(result.Stages[0].Warnings).To(HaveLen(1))
	})

	It("publishes one event per executed stage", func() {
		stages := []orchestrator.Stage{
			succeed("first", &ran),
			{
				Name:  "second",
				Class: orchestrator.Critical,
				Run: func(ctx context.Context) ([]string, error) {
					return nil, errors.New("nope")
				},
			},
			succeed("third", &ran),
		}
		_, _ = runner.Run(context.Background(), stages)
		Expect(notifier.events).To(HaveLen(2))
		Expect(notifier.events[0].Outcome).To(Equal("succeeded"))
		Expect(notifier.events[1].Outcome).To(Equal("failed"))
		Expect(notifier.events[1].Reason).To(ContainSubstring("nope"))
		Expect(notifier.events[0].RunID).To(Equal(notifier.events[1].RunID))
	})
})

var _ = Describe("TerminalPrompter", func() {
	It("treats y and yes as consent", func() {
		for _, answer := range []string{"y\n", "Y\n", "yes\n", " YES \n"} {
			p := &orchestrator.TerminalPrompter{
				In:  strings.NewReader(answer),
				Out: &strings.Builder{},
			}
			ok, err := p.Confirm("proceed?")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue(), "answer %q", answer)
		}
	})

	It("defaults to no", func() {
		for _, answer := range []string{"\n", "n\n", "no\n", "anything\n"} {
			p := &orchestrator.TerminalPrompter{
				In:  strings.NewReader(answer),
				Out: &strings.Builder{},
			}
			ok, err := p.Confirm("proceed?")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse(), "answer %q", answer)
		}
	})

	It("answers yes without prompting when AssumeYes is set", func() {
		out := &strings.Builder{}
		p := &orchestrator.TerminalPrompter{
			In: strings.NewReader(""), Out: out, AssumeYes: true,
		}
		ok, err := p.Confirm("proceed?")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(out.String()).To(BeEmpty())
	})
})
