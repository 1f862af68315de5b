package cfg

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/pospon/api/internal/xerrors"
)

// SSMGetter is the slice of the SSM API the origin source needs.
// *ssm.Client satisfies it.
type SSMGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// FetchSSMOrigins reads a comma-separated CORS origin allow-list from the
// given SSM parameter. Empty entries are dropped; order is preserved.
// Deployments that manage the allow-list out-of-band point -cors-ssm-param
// at the parameter instead of baking origins into the unit file.
func FetchSSMOrigins(ctx context.Context, client SSMGetter, param string) ([]string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(param),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get SSM parameter %s", param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("SSM parameter %s has no value", param)
	}

	var origins []string
	for _, o := range strings.Split(*out.Parameter.Value, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return nil, xerrors.Newf("SSM parameter %s contains no origins", param)
	}
	return origins, nil
}
