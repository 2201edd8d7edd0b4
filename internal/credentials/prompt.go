package credentials

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks questions on a line-oriented terminal. Secrets are read
// without echo when the input is a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

// Ask prints label and returns the trimmed answer, or def when it is empty.
func (p *Prompter) Ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [default %s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Secret reads a value without echoing it.
func (p *Prompter) Secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if !p.tty {
		return p.readLine()
	}
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Confirm asks a yes/no question. Anything but y or yes is no.
func (p *Prompter) Confirm(label string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/n] ", label)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// PromptAWS collects AWS credentials interactively.
func PromptAWS(p *Prompter) (AWS, error) {
	var (
		c   AWS
		err error
	)
	if c.AccessKeyID, err = p.Ask("Your AWS access key", ""); err != nil {
		return c, err
	}
	if c.SecretAccessKey, err = p.Secret("Your AWS secret access key"); err != nil {
		return c, err
	}
	if c.Region, err = p.Ask("Default region", defaultRegion); err != nil {
		return c, err
	}
	return c, nil
}

// PromptAzure collects an Azure storage account and key interactively.
func PromptAzure(p *Prompter) (Azure, error) {
	var (
		c   Azure
		err error
	)
	if c.Account, err = p.Ask("Your Azure storage account name", ""); err != nil {
		return c, err
	}
	if c.Key, err = p.Secret("Your Azure storage access key"); err != nil {
		return c, err
	}
	return c, nil
}
