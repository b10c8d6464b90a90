package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/keyquorum/wallet-recovery-backend/api"
	"github.com/keyquorum/wallet-recovery-backend/api/custodyhandler"
	"github.com/keyquorum/wallet-recovery-backend/api/recoveryhandler"
	"github.com/keyquorum/wallet-recovery-backend/cryptoutils"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
	"github.com/keyquorum/wallet-recovery-backend/recovery"
	"github.com/keyquorum/wallet-recovery-backend/sharebackup"
	"github.com/keyquorum/wallet-recovery-backend/token"
	"github.com/keyquorum/wallet-recovery-backend/verification"
)

var flagServerAddr *cli.StringFlag = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	Usage:   "wallet recovery service address",
	EnvVars: []string{"RECOVERY_SERVER_ADDR"},
}

var flagPresentationFactor *cli.StringFlag = &cli.StringFlag{
	Name:     "presentation-factor",
	Usage:    "hex presentation factor",
	Required: true,
}

var flagRecoveryFactor *cli.StringFlag = &cli.StringFlag{
	Name:     "recovery-factor",
	Usage:    "hex recovery factor",
	Required: true,
}

var flagPassword *cli.StringFlag = &cli.StringFlag{
	Name:    "password",
	Usage:   "raw password; the password factor is derived from it and the token's salt",
	EnvVars: []string{"WALLET_PASSWORD"},
}

var flagRootPrimary *cli.StringFlag = &cli.StringFlag{
	Name:     "root-primary",
	Usage:    "hex primary root key",
	Required: true,
}

var flagRootPrivileged *cli.StringFlag = &cli.StringFlag{
	Name:     "root-privileged",
	Usage:    "hex privileged root key",
	Required: true,
}

var flagProfileFile *cli.StringFlag = &cli.StringFlag{
	Name:  "profile-file",
	Usage: "optional file whose contents are sealed into the token under the privileged root",
}

var flagLookupHash *cli.StringFlag = &cli.StringFlag{
	Name:     "lookup-hash",
	Usage:    "hex lookup hash of the presentation or recovery factor",
	Required: true,
}

var flagMode *cli.StringFlag = &cli.StringFlag{
	Name:     "mode",
	Usage:    "recovery mode: presentation+password, presentation+recovery, or recovery+password",
	Required: true,
}

var flagFactorA *cli.StringFlag = &cli.StringFlag{
	Name:  "factor-a",
	Usage: "hex first factor of the pair",
}

var flagFactorB *cli.StringFlag = &cli.StringFlag{
	Name:  "factor-b",
	Usage: "hex second factor of the pair",
}

var flagKind *cli.StringFlag = &cli.StringFlag{
	Name:     "kind",
	Usage:    "factor kind to rotate: presentation, password, or recovery",
	Required: true,
}

var flagOldFactor *cli.StringFlag = &cli.StringFlag{
	Name:     "old-factor",
	Usage:    "hex factor being replaced",
	Required: true,
}

var flagNewFactor *cli.StringFlag = &cli.StringFlag{
	Name:  "new-factor",
	Usage: "hex replacement factor; omit with --new-password for password rotation",
}

var flagNewPassword *cli.StringFlag = &cli.StringFlag{
	Name:  "new-password",
	Usage: "raw replacement password; the service derives the factor under a fresh salt",
}

var flagIdentity *cli.StringFlag = &cli.StringFlag{
	Name:     "identity",
	Usage:    "custody identity, e.g. an email address",
	Required: true,
}

var flagShare *cli.StringFlag = &cli.StringFlag{
	Name:     "share",
	Usage:    "encoded share (index.hexdata.threshold.checksum)",
	Required: true,
}

var flagMethod *cli.StringFlag = &cli.StringFlag{
	Name:  "method",
	Value: verification.MethodDevOTP,
	Usage: "verification method",
}

var flagProof *cli.StringFlag = &cli.StringFlag{
	Name:  "proof",
	Usage: "verification proof; when empty a challenge is started and its dev hint is used",
}

var flagSecret *cli.StringFlag = &cli.StringFlag{
	Name:     "secret",
	Usage:    "hex secret to split",
	Required: true,
}

var flagParts *cli.IntFlag = &cli.IntFlag{
	Name:  "parts",
	Value: 3,
	Usage: "number of shares to produce",
}

var flagThreshold *cli.IntFlag = &cli.IntFlag{
	Name:  "threshold",
	Value: 2,
	Usage: "number of shares needed to reassemble",
}

var flagTokenFile *cli.StringFlag = &cli.StringFlag{
	Name:  "token-file",
	Value: "token.bin",
	Usage: "path of the serialized token",
}

func main() {
	app := &cli.App{
		Name:  "walletctl",
		Usage: "Client-side tooling for wallet recovery: factors, tokens, and custodied shares",
		Commands: []*cli.Command{
			{
				Name:        "generate",
				Usage:       "Generate fresh factors and root keys",
				Description: "Prints a presentation factor, a recovery factor, and both root keys as hex. Store them somewhere safe; the service never sees them in plain form.",
				Action:      runGenerate,
			},
			{
				Name:   "register",
				Usage:  "Build a threshold token and register it with the service",
				Flags:  []cli.Flag{flagServerAddr, flagPresentationFactor, flagRecoveryFactor, flagPassword, flagRootPrimary, flagRootPrivileged, flagProfileFile},
				Action: runRegister,
			},
			{
				Name:   "info",
				Usage:  "Fetch the public metadata of a registered token",
				Flags:  []cli.Flag{flagServerAddr, flagLookupHash},
				Action: runInfo,
			},
			{
				Name:   "recover",
				Usage:  "Recover root keys from a factor pair",
				Flags:  []cli.Flag{flagServerAddr, flagMode, flagFactorA, flagFactorB, flagPassword},
				Action: runRecover,
			},
			{
				Name:   "rotate",
				Usage:  "Replace one factor of a registered token",
				Flags:  []cli.Flag{flagServerAddr, flagLookupHash, flagKind, flagOldFactor, flagNewFactor, flagNewPassword, flagRootPrimary, flagRootPrivileged},
				Action: runRotate,
			},
			{
				Name:   "build-local",
				Usage:  "Build a token offline and write it to a file",
				Flags:  []cli.Flag{flagPresentationFactor, flagRecoveryFactor, flagPassword, flagRootPrimary, flagRootPrivileged, flagTokenFile},
				Action: runBuildLocal,
			},
			{
				Name:   "recover-local",
				Usage:  "Recover root keys from a token file without the service",
				Flags:  []cli.Flag{flagTokenFile, flagMode, flagFactorA, flagFactorB, flagPassword},
				Action: runRecoverLocal,
			},
			{
				Name:   "split",
				Usage:  "Split a secret into threshold shares for offline custody",
				Flags:  []cli.Flag{flagSecret, flagParts, flagThreshold},
				Action: runSplit,
			},
			{
				Name:      "combine",
				Usage:     "Reassemble a secret from encoded shares",
				ArgsUsage: "share [share ...]",
				Action:    runCombine,
			},
			{
				Name:   "verify-start",
				Usage:  "Start a verification challenge for an identity",
				Flags:  []cli.Flag{flagServerAddr, flagIdentity, flagMethod},
				Action: runVerifyStart,
			},
			{
				Name:   "store-share",
				Usage:  "Store an encoded share with the custody service",
				Flags:  []cli.Flag{flagServerAddr, flagIdentity, flagShare, flagMethod, flagProof},
				Action: runStoreShare,
			},
			{
				Name:   "retrieve-share",
				Usage:  "Retrieve the custodied share for an identity",
				Flags:  []cli.Flag{flagServerAddr, flagIdentity, flagMethod, flagProof},
				Action: runRetrieveShare,
			},
			{
				Name:   "update-share",
				Usage:  "Replace the custodied share for an identity",
				Flags:  []cli.Flag{flagServerAddr, flagIdentity, flagShare, flagMethod, flagProof},
				Action: runUpdateShare,
			},
			{
				Name:   "delete-share",
				Usage:  "Delete the custodied share for an identity",
				Flags:  []cli.Flag{flagServerAddr, flagIdentity, flagMethod, flagProof},
				Action: runDeleteShare,
			},
			{
				Name:   "audit",
				Usage:  "List the newest custody access log entries for an identity",
				Flags:  []cli.Flag{flagServerAddr, flagIdentity, flagMethod, flagProof},
				Action: runAudit,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runGenerate(*cli.Context) error {
	presentation, err := cryptoutils.RandomFactor()
	if err != nil {
		return err
	}
	recoveryFactor, err := cryptoutils.RandomFactor()
	if err != nil {
		return err
	}
	rootPrimary, err := cryptoutils.RandomRootKey()
	if err != nil {
		return err
	}
	rootPrivileged, err := cryptoutils.RandomRootKey()
	if err != nil {
		return err
	}

	return printJSON(map[string]string{
		"presentation_factor": hex.EncodeToString(presentation.Bytes()),
		"recovery_factor":     hex.EncodeToString(recoveryFactor.Bytes()),
		"root_primary":        hex.EncodeToString(rootPrimary.Bytes()),
		"root_privileged":     hex.EncodeToString(rootPrivileged.Bytes()),
	})
}

func runRegister(cCtx *cli.Context) error {
	if cCtx.String(flagPassword.Name) == "" {
		return fmt.Errorf("--password is required")
	}

	req := &api.BuildTokenRequest{
		PresentationFactor: cCtx.String(flagPresentationFactor.Name),
		RecoveryFactor:     cCtx.String(flagRecoveryFactor.Name),
		Password:           cCtx.String(flagPassword.Name),
		RootPrimary:        cCtx.String(flagRootPrimary.Name),
		RootPrivileged:     cCtx.String(flagRootPrivileged.Name),
	}

	if path := cCtx.String(flagProfileFile.Name); path != "" {
		profile, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read profile file: %w", err)
		}
		req.Profile = profile
	}

	client := recoveryhandler.NewClient(cCtx.String(flagServerAddr.Name))
	resp, err := client.BuildToken(cCtx.Context, req)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runInfo(cCtx *cli.Context) error {
	client := recoveryhandler.NewClient(cCtx.String(flagServerAddr.Name))
	resp, err := client.TokenInfo(cCtx.Context, cCtx.String(flagLookupHash.Name))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runRecover(cCtx *cli.Context) error {
	client := recoveryhandler.NewClient(cCtx.String(flagServerAddr.Name))

	factorA := cCtx.String(flagFactorA.Name)
	factorB := cCtx.String(flagFactorB.Name)
	if password := cCtx.String(flagPassword.Name); password != "" {
		known := factorA
		if known == "" {
			known = factorB
		}
		if known == "" || (factorA != "" && factorB != "") {
			return fmt.Errorf("--password replaces exactly one factor; supply the other via --factor-a or --factor-b")
		}

		derived, err := derivePasswordFactor(cCtx.Context, client, known, password)
		if err != nil {
			return err
		}
		if factorA == "" {
			factorA = derived
		} else {
			factorB = derived
		}
	}

	resp, err := client.Recover(cCtx.Context, &api.RecoverRequest{
		Mode:    cCtx.String(flagMode.Name),
		FactorA: factorA,
		FactorB: factorB,
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runRotate(cCtx *cli.Context) error {
	client := recoveryhandler.NewClient(cCtx.String(flagServerAddr.Name))
	resp, err := client.RotateFactor(cCtx.Context, &api.RotateFactorRequest{
		LookupHash:     cCtx.String(flagLookupHash.Name),
		Kind:           cCtx.String(flagKind.Name),
		OldFactor:      cCtx.String(flagOldFactor.Name),
		NewFactor:      cCtx.String(flagNewFactor.Name),
		NewPassword:    cCtx.String(flagNewPassword.Name),
		RootPrimary:    cCtx.String(flagRootPrimary.Name),
		RootPrivileged: cCtx.String(flagRootPrivileged.Name),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runBuildLocal(cCtx *cli.Context) error {
	if cCtx.String(flagPassword.Name) == "" {
		return fmt.Errorf("--password is required")
	}

	presentation, err := interfaces.NewFactorFromHex(cCtx.String(flagPresentationFactor.Name))
	if err != nil {
		return fmt.Errorf("invalid presentation factor encoding")
	}
	recoveryFactor, err := interfaces.NewFactorFromHex(cCtx.String(flagRecoveryFactor.Name))
	if err != nil {
		return fmt.Errorf("invalid recovery factor encoding")
	}
	rootPrimary, err := interfaces.NewRootKeyFromHex(cCtx.String(flagRootPrimary.Name))
	if err != nil {
		return fmt.Errorf("invalid primary root key encoding")
	}
	rootPrivileged, err := interfaces.NewRootKeyFromHex(cCtx.String(flagRootPrivileged.Name))
	if err != nil {
		return fmt.Errorf("invalid privileged root key encoding")
	}

	salt, err := cryptoutils.NewSalt()
	if err != nil {
		return err
	}
	password, err := token.DerivePasswordFactor([]byte(cCtx.String(flagPassword.Name)), salt)
	if err != nil {
		return err
	}

	tok, err := token.Build(token.Factors{
		Presentation: presentation,
		Password:     password,
		Recovery:     recoveryFactor,
	}, rootPrimary, rootPrivileged, salt)
	if err != nil {
		return err
	}

	blob, err := tok.MarshalBinary()
	if err != nil {
		return err
	}

	path := cCtx.String(flagTokenFile.Name)
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return printJSON(map[string]string{
		"token_file":        path,
		"presentation_hash": presentation.LookupHash().String(),
		"recovery_hash":     recoveryFactor.LookupHash().String(),
		"password_salt":     hex.EncodeToString(salt),
	})
}

func runRecoverLocal(cCtx *cli.Context) error {
	blob, err := os.ReadFile(cCtx.String(flagTokenFile.Name))
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}

	var tok token.Token
	if err := tok.UnmarshalBinary(blob); err != nil {
		return fmt.Errorf("token file does not decode: %w", err)
	}

	mode, err := interfaces.ParseRecoveryMode(cCtx.String(flagMode.Name))
	if err != nil {
		return err
	}

	factorAHex := cCtx.String(flagFactorA.Name)
	factorBHex := cCtx.String(flagFactorB.Name)
	if password := cCtx.String(flagPassword.Name); password != "" {
		derived, err := token.DerivePasswordFactor([]byte(password), tok.PasswordSalt)
		if err != nil {
			return err
		}
		if factorAHex == "" {
			factorAHex = hex.EncodeToString(derived.Bytes())
		} else {
			factorBHex = hex.EncodeToString(derived.Bytes())
		}
	}

	factorA, err := interfaces.NewFactorFromHex(factorAHex)
	if err != nil {
		return fmt.Errorf("invalid factor encoding")
	}
	factorB, err := interfaces.NewFactorFromHex(factorBHex)
	if err != nil {
		return fmt.Errorf("invalid factor encoding")
	}

	result, err := recovery.Recover(mode, factorA, factorB, &tok)
	if err != nil {
		return err
	}

	out := map[string]any{
		"root_primary":         hex.EncodeToString(result.RootPrimary.Bytes()),
		"privileged_derivable": result.PrivilegedDerivable,
	}
	if result.PrivilegedDerivable {
		out["root_privileged"] = hex.EncodeToString(result.RootPrivileged.Bytes())
	}
	return printJSON(out)
}

func runSplit(cCtx *cli.Context) error {
	secret, err := hex.DecodeString(cCtx.String(flagSecret.Name))
	if err != nil {
		return fmt.Errorf("secret must be hex encoded")
	}

	shares, err := sharebackup.Split(secret, cCtx.Int(flagParts.Name), cCtx.Int(flagThreshold.Name))
	if err != nil {
		return err
	}

	for _, share := range shares {
		fmt.Println(share)
	}
	return nil
}

func runCombine(cCtx *cli.Context) error {
	shares := cCtx.Args().Slice()
	if len(shares) == 0 {
		return fmt.Errorf("supply the shares as arguments")
	}

	secret, err := sharebackup.Combine(shares)
	if err != nil {
		return err
	}

	fmt.Println(hex.EncodeToString(secret))
	return nil
}

func runVerifyStart(cCtx *cli.Context) error {
	client := custodyhandler.NewClient(cCtx.String(flagServerAddr.Name))
	challenge, err := client.StartVerification(cCtx.Context, cCtx.String(flagIdentity.Name), cCtx.String(flagMethod.Name))
	if err != nil {
		return err
	}
	return printJSON(challenge)
}

func runStoreShare(cCtx *cli.Context) error {
	client := custodyhandler.NewClient(cCtx.String(flagServerAddr.Name))
	identity := cCtx.String(flagIdentity.Name)

	proof, err := resolveProof(cCtx, client, identity)
	if err != nil {
		return err
	}

	resp, err := client.StoreShare(cCtx.Context, identity, cCtx.String(flagShare.Name), proof)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runRetrieveShare(cCtx *cli.Context) error {
	client := custodyhandler.NewClient(cCtx.String(flagServerAddr.Name))
	identity := cCtx.String(flagIdentity.Name)

	proof, err := resolveProof(cCtx, client, identity)
	if err != nil {
		return err
	}

	resp, err := client.RetrieveShare(cCtx.Context, identity, proof)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runUpdateShare(cCtx *cli.Context) error {
	client := custodyhandler.NewClient(cCtx.String(flagServerAddr.Name))
	identity := cCtx.String(flagIdentity.Name)

	proof, err := resolveProof(cCtx, client, identity)
	if err != nil {
		return err
	}

	resp, err := client.UpdateShare(cCtx.Context, identity, cCtx.String(flagShare.Name), proof)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runDeleteShare(cCtx *cli.Context) error {
	client := custodyhandler.NewClient(cCtx.String(flagServerAddr.Name))
	identity := cCtx.String(flagIdentity.Name)

	proof, err := resolveProof(cCtx, client, identity)
	if err != nil {
		return err
	}

	if err := client.DeleteShare(cCtx.Context, identity, proof); err != nil {
		return err
	}
	fmt.Println("share deleted")
	return nil
}

func runAudit(cCtx *cli.Context) error {
	client := custodyhandler.NewClient(cCtx.String(flagServerAddr.Name))
	identity := cCtx.String(flagIdentity.Name)

	proof, err := resolveProof(cCtx, client, identity)
	if err != nil {
		return err
	}

	resp, err := client.AuditLog(cCtx.Context, identity, proof)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

// derivePasswordFactor re-derives the password factor from the raw password
// and the salt stored alongside the token the other factor points at.
func derivePasswordFactor(ctx context.Context, client *recoveryhandler.Client, otherFactorHex, password string) (string, error) {
	other, err := interfaces.NewFactorFromHex(otherFactorHex)
	if err != nil {
		return "", fmt.Errorf("invalid factor encoding")
	}

	info, err := client.TokenInfo(ctx, other.LookupHash().String())
	if err != nil {
		return "", err
	}

	salt, err := hex.DecodeString(info.PasswordSalt)
	if err != nil {
		return "", fmt.Errorf("service returned an unusable salt: %w", err)
	}

	factor, err := token.DerivePasswordFactor([]byte(password), salt)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(factor.Bytes()), nil
}

// resolveProof returns the verification proof for one custody call. An empty
// --proof starts a fresh challenge and uses its hint, which only development
// methods populate.
func resolveProof(cCtx *cli.Context, client *custodyhandler.Client, identity string) (api.VerificationProof, error) {
	method := cCtx.String(flagMethod.Name)
	if proof := cCtx.String(flagProof.Name); proof != "" {
		return api.VerificationProof{Method: method, Proof: proof}, nil
	}

	challenge, err := client.StartVerification(cCtx.Context, identity, method)
	if err != nil {
		return api.VerificationProof{}, err
	}
	if challenge.Hint == "" {
		return api.VerificationProof{}, fmt.Errorf("challenge issued; re-run with --proof once the %s code arrives", method)
	}
	return api.VerificationProof{Method: method, Proof: challenge.Hint}, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
