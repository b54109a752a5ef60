package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/averlon/instantagent/internal/domain"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <agent-id>",
		Short: "Open an interactive conversation with an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			session, err := e.reg.SelectAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			agent := session.Agent()
			fmt.Printf("chatting with %s (%s); /quit to leave\n\n", agent.DisplayName, agent.ModelName)
			for _, msg := range session.Transcript() {
				printMessage(msg)
			}

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("you> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					break
				}

				reply, err := session.PostUserMessage(cmd.Context(), line)
				if err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
					continue
				}
				printMessage(reply)
			}
			return scanner.Err()
		},
	}
}

func printMessage(msg domain.Message) {
	prefix := "agent"
	if msg.Sender == domain.SenderUser {
		prefix = "you"
	}
	fmt.Printf("%s> %s\n", prefix, msg.Text)
	if msg.ImageURL != "" {
		fmt.Printf("       image: %s\n", msg.ImageURL)
	}
}
