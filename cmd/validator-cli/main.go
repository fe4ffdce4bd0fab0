package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// KeyProfile is a validator's saved consensus keypair and registration
// metadata, adapted from the teacher's ValidatorProfile (cmd/validator-cli):
// same generate/register/status shape, with ed25519 keys instead of
// Dilithium/Falcon. The validator engine checks only that a registered
// public key is 32 bytes long; it verifies no signatures (spec.md §4.3).
type KeyProfile struct {
	Moniker    string `json:"moniker"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	CreatedAt  int64  `json:"created_at"`
	Status     string `json:"status"`
}

func main() {
	var (
		cmdGenerate = flag.Bool("generate", false, "generate a new consensus keypair")
		cmdRegister = flag.Bool("register", false, "register the generated key as a validator operator")
		cmdStatus   = flag.Bool("status", false, "query a registered operator's status")

		outputDir = flag.String("output", "./validator-keys", "directory to store the keypair")
		moniker   = flag.String("moniker", "", "validator display name")
		caller    = flag.String("caller", "", "operator address (hex) submitting the registration")
		operator  = flag.String("operator", "", "operator address (hex) to query, defaults to -caller")
		rpcAddr   = flag.String("rpc", "http://localhost:26658/rpc", "poe-noded JSON dispatch endpoint")
	)
	flag.Parse()

	switch {
	case *cmdGenerate:
		generateKeys(*outputDir, *moniker)
	case *cmdRegister:
		registerValidator(*outputDir, *rpcAddr, *caller)
	case *cmdStatus:
		q := *operator
		if q == "" {
			q = *caller
		}
		queryStatus(*rpcAddr, q)
	default:
		printHelp()
	}
}

func generateKeys(outputDir, moniker string) {
	if err := os.MkdirAll(outputDir, 0700); err != nil {
		fmt.Printf("error creating directory: %v\n", err)
		return
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Printf("error generating key: %v\n", err)
		return
	}

	profile := KeyProfile{
		Moniker:    moniker,
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: hex.EncodeToString(priv),
		CreatedAt:  time.Now().Unix(),
		Status:     "generated",
	}

	path := filepath.Join(outputDir, "validator-profile.json")
	if err := saveProfile(profile, path); err != nil {
		fmt.Printf("error saving profile: %v\n", err)
		return
	}

	fmt.Printf("generated consensus keypair\npublic key: %s\nsaved to:   %s\n", profile.PublicKey, path)
	fmt.Println("keep the private key in that file secret; next step: validator-cli -register -caller <your address>")
}

func registerValidator(outputDir, rpcAddr, caller string) {
	if caller == "" {
		fmt.Println("error: -caller is required")
		return
	}
	profile, err := loadProfile(filepath.Join(outputDir, "validator-profile.json"))
	if err != nil {
		fmt.Printf("error loading profile: %v\n", err)
		return
	}
	pub, err := hex.DecodeString(profile.PublicKey)
	if err != nil {
		fmt.Printf("error decoding public key: %v\n", err)
		return
	}

	params := map[string]interface{}{
		"caller": caller,
		"pubkey": pub,
		"metadata": map[string]string{
			"moniker": profile.Moniker,
		},
	}
	result, err := call(rpcAddr, "validator.registerKey", params)
	if err != nil {
		fmt.Printf("registration failed: %v\n", err)
		return
	}

	profile.Status = "registered"
	_ = saveProfile(*profile, filepath.Join(outputDir, "validator-profile.json"))

	fmt.Println("validator registered")
	fmt.Printf("response: %s\n", result)
}

func queryStatus(rpcAddr, addr string) {
	if addr == "" {
		fmt.Println("error: -operator or -caller is required")
		return
	}
	result, err := call(rpcAddr, "validator.get", map[string]interface{}{"addr": addr})
	if err != nil {
		fmt.Printf("query failed: %v\n", err)
		return
	}
	fmt.Println(result)
}

func call(rpcAddr, method string, params interface{}) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	req := struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		ID     int             `json:"id"`
	}{Method: method, Params: paramsJSON, ID: 1}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	resp, err := http.Post(rpcAddr, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		return "", err
	}
	return out.String(), nil
}

func saveProfile(profile KeyProfile, path string) error {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func loadProfile(path string) (*KeyProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var profile KeyProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func printHelp() {
	fmt.Println("validator-cli: manage a proof-of-engagement validator's consensus key")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  -generate   generate a new consensus keypair")
	fmt.Println("  -register   register the keypair as a validator operator")
	fmt.Println("  -status     query an operator's current status")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -output     directory to store the keypair (default ./validator-keys)")
	fmt.Println("  -moniker    validator display name")
	fmt.Println("  -caller     operator address submitting the registration")
	fmt.Println("  -operator   operator address to query")
	fmt.Println("  -rpc        poe-noded JSON dispatch endpoint")
}
