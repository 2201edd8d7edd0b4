// Package credentials writes cloud credentials where the provider SDKs look
// for them: ~/.aws/{credentials,config} and ~/.azure/config.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

const defaultRegion = "us-east-1"

// AWS holds the default-profile credentials.
type AWS struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Azure holds a storage account and its access key.
type Azure struct {
	Account string
	Key     string
}

// WriteAWS stores c in the default profile under home/.aws and returns the
// directory written to. Other profiles and keys are preserved.
func WriteAWS(home string, c AWS) (string, error) {
	dir := filepath.Join(home, ".aws")
	if c.Region == "" {
		c.Region = defaultRegion
	}

	err := update(filepath.Join(dir, "credentials"), 0o600, func(f *ini.File) {
		sec := f.Section("default")
		sec.Key("aws_access_key_id").SetValue(c.AccessKeyID)
		sec.Key("aws_secret_access_key").SetValue(c.SecretAccessKey)
	})
	if err != nil {
		return "", err
	}

	err = update(filepath.Join(dir, "config"), 0o644, func(f *ini.File) {
		f.Section("default").Key("region").SetValue(c.Region)
	})
	if err != nil {
		return "", err
	}
	return dir, nil
}

// WriteAzure stores c in the [storage] section of home/.azure/config.
func WriteAzure(home string, c Azure) (string, error) {
	dir := filepath.Join(home, ".azure")
	err := update(filepath.Join(dir, "config"), 0o600, func(f *ini.File) {
		sec := f.Section("storage")
		if c.Account != "" {
			sec.Key("account").SetValue(c.Account)
		}
		sec.Key("key").SetValue(c.Key)
	})
	if err != nil {
		return "", err
	}
	return dir, nil
}

// LoadAzure reads the [storage] section of home/.azure/config. A missing
// file yields zero values.
func LoadAzure(home string) (Azure, error) {
	f, err := ini.LooseLoad(filepath.Join(home, ".azure", "config"))
	if err != nil {
		return Azure{}, fmt.Errorf("read azure config: %w", err)
	}
	sec := f.Section("storage")
	return Azure{
		Account: sec.Key("account").String(),
		Key:     sec.Key("key").String(),
	}, nil
}

// ExportAzure copies the stored Azure account into the environment variables
// the blob SDK reads, leaving variables that are already set alone.
func ExportAzure(home string) error {
	c, err := LoadAzure(home)
	if err != nil {
		return err
	}
	for env, val := range map[string]string{
		"AZURE_STORAGE_ACCOUNT": c.Account,
		"AZURE_STORAGE_KEY":     c.Key,
	} {
		if val == "" || os.Getenv(env) != "" {
			continue
		}
		if err := os.Setenv(env, val); err != nil {
			return err
		}
	}
	return nil
}

func update(path string, perm os.FileMode, mutate func(*ini.File)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := ini.LooseLoad(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	mutate(f)
	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Chmod(path, perm)
}
