package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jdziat/credibility-sync/pkg/core"
)

var (
	enqueueUser     string
	enqueueSource   string
	enqueueLogin    string
	enqueuePlatform string
	enqueueHandle   string
	enqueueForce    bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Request a sync for a user",
	Long:  "Enqueues a single-source sync when --source is given, otherwise a full sync of every source of the user. Prints the job id.",
	RunE:  runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVarP(&enqueueUser, "user", "u", "", "User id (required)")
	enqueueCmd.Flags().StringVarP(&enqueueSource, "source", "s", "", "Source to sync: repository, social, education or certification")
	enqueueCmd.Flags().StringVar(&enqueueLogin, "login", "", "Repository account login")
	enqueueCmd.Flags().StringVar(&enqueuePlatform, "platform", "", "Social platform")
	enqueueCmd.Flags().StringVar(&enqueueHandle, "handle", "", "Social account handle")
	enqueueCmd.Flags().BoolVar(&enqueueForce, "force", false, "Refetch even when the stored profile is fresh")

	if err := enqueueCmd.MarkFlagRequired("user"); err != nil {
		panic(fmt.Sprintf("failed to mark user flag as required: %v", err))
	}
	rootCmd.AddCommand(enqueueCmd)
}

// syncPayload builds the payload named by the flags.
func syncPayload() (core.Payload, error) {
	if enqueueSource == "" {
		full := core.FullSync{UserID: enqueueUser, ForceRefresh: enqueueForce}
		if enqueueLogin != "" {
			full.Repository = &core.RepositorySync{UserID: enqueueUser, Login: enqueueLogin}
		}
		if enqueuePlatform != "" || enqueueHandle != "" {
			full.Social = []core.SocialSync{{UserID: enqueueUser, Platform: enqueuePlatform, Handle: enqueueHandle}}
		}
		return full, nil
	}
	src, err := core.ParseSource(enqueueSource)
	if err != nil {
		return nil, err
	}
	switch src {
	case core.SourceRepository:
		return core.RepositorySync{UserID: enqueueUser, Login: enqueueLogin, ForceRefresh: enqueueForce}, nil
	case core.SourceSocial:
		return core.SocialSync{UserID: enqueueUser, Platform: enqueuePlatform, Handle: enqueueHandle, ForceRefresh: enqueueForce}, nil
	case core.SourceEducation:
		return core.EducationSync{UserID: enqueueUser, ForceRefresh: enqueueForce}, nil
	default:
		return core.CertificationSync{UserID: enqueueUser, ForceRefresh: enqueueForce}, nil
	}
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	payload, err := syncPayload()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	sys, _, _, err := openSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	var (
		id        string
		coalesced bool
	)
	switch p := payload.(type) {
	case core.FullSync:
		id, coalesced, err = sys.EnqueueFullSync(ctx, p)
	case core.SourceSync:
		id, coalesced, err = sys.EnqueueSync(ctx, p)
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	return printJSON(map[string]any{"jobId": id, "coalesced": coalesced})
}
