package identity

import (
	"encoding/json"
	"errors"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

type trustDocument struct {
	Version   string           `json:"Version"`
	Statement []trustStatement `json:"Statement"`
}

type trustStatement struct {
	Effect    string          `json:"Effect"`
	Principal trustPrincipal  `json:"Principal"`
	Action    json.RawMessage `json:"Action"`
}

// trustPrincipal tolerates the single-string and list forms IAM returns.
type trustPrincipal struct {
	AWS []string
}

func (p trustPrincipal) MarshalJSON() ([]byte, error) {
	if len(p.AWS) == 1 {
		return json.Marshal(map[string]string{"AWS": p.AWS[0]})
	}
	return json.Marshal(map[string][]string{"AWS": p.AWS})
}

func (p *trustPrincipal) UnmarshalJSON(data []byte) error {
	var asList struct {
		AWS []string `json:"AWS"`
	}
	if err := json.Unmarshal(data, &asList); err == nil && asList.AWS != nil {
		p.AWS = asList.AWS
		return nil
	}
	var asString struct {
		AWS string `json:"AWS"`
	}
	if err := json.Unmarshal(data, &asString); err != nil {
		return err
	}
	p.AWS = []string{asString.AWS}
	return nil
}

// addPrincipal merges arn into the first assume-role statement, reporting
// whether the document changed.
func (d *trustDocument) addPrincipal(arn string) bool {
	if len(d.Statement) == 0 {
		return false
	}
	for _, existing := range d.Statement[0].Principal.AWS {
		if existing == arn {
			return false
		}
	}
	d.Statement[0].Principal.AWS = append(d.Statement[0].Principal.AWS, arn)
	return true
}

func assumeRoleDocument(principalArn string) (string, error) {
	doc := trustDocument{
		Version: "2012-10-17",
		Statement: []trustStatement{{
			Effect:    "Allow",
			Principal: trustPrincipal{AWS: []string{principalArn}},
			Action:    json.RawMessage(`"sts:AssumeRole"`),
		}},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// decodeTrustDocument parses the URL-encoded JSON document returned by
// iam:GetRole.
func decodeTrustDocument(encoded string) (*trustDocument, error) {
	raw, err := url.QueryUnescape(encoded)
	if err != nil {
		return nil, err
	}
	var doc trustDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func entityExists(err error) bool {
	var exists *types.EntityAlreadyExistsException
	return errors.As(err, &exists)
}
