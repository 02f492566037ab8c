package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/portwatch/internal/secrets"
)

func encryptPasswordCmd() *cobra.Command {
	var passwordFile, keyFile string
	cmd := &cobra.Command{
		Use:   "encrypt-password",
		Short: "Encrypt the mail password read from stdin into a password and key file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return executeEncrypt(cmd.InOrStdin(), cmd.OutOrStdout(), passwordFile, keyFile)
		},
	}
	cmd.Flags().StringVar(&passwordFile, "password-file", "password.bin", "output path for the encrypted password")
	cmd.Flags().StringVar(&keyFile, "key-file", "key.bin", "output path for the key")
	return cmd
}

func executeEncrypt(in io.Reader, out io.Writer, passwordFile, keyFile string) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}
	if err := secrets.EncryptPassword(password, passwordFile, keyFile); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s and %s\n", passwordFile, keyFile)
	return nil
}
