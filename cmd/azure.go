package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/mattn/go-isatty"

	"github.com/coullessi/arcdefender/internal/helpers"
	"github.com/coullessi/arcdefender/internal/message"
)

var subscriptionID string

// resolveSubscription returns the subscription to operate on. The
// --subscription flag wins; otherwise the user picks one interactively, which
// needs a terminal on stdin.
func resolveSubscription(ctx context.Context, cred azcore.TokenCredential) (string, error) {
	if subscriptionID != "" {
		if !helpers.ValidSubscriptionID(subscriptionID) {
			return "", fmt.Errorf("invalid subscription ID %q", subscriptionID)
		}
		return subscriptionID, nil
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return "", fmt.Errorf("no subscription selected; pass --subscription")
	}

	subs, err := helpers.ListSubscriptions(ctx, cred)
	if err != nil {
		return "", err
	}
	if len(subs) == 1 {
		message.Info("Using subscription %s (%s)", subs[0].Name, subs[0].ID)
		return subs[0].ID, nil
	}

	fmt.Println("\nSelect a subscription:")
	for i, sub := range subs {
		fmt.Printf("%d) %s (%s)\n", i+1, sub.Name, sub.ID)
	}
	fmt.Printf("Enter choice (1-%d) [1]: ", len(subs))

	reader := bufio.NewReader(os.Stdin)
	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(choice)
	if choice == "" {
		choice = "1"
	}

	index, err := strconv.Atoi(choice)
	if err != nil || index < 1 || index > len(subs) {
		return "", fmt.Errorf("invalid choice %q", choice)
	}

	return subs[index-1].ID, nil
}
