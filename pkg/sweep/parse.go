package sweep

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/askiada/go-sweep/pkg/sweep/capability"
	"github.com/askiada/go-sweep/pkg/sweep/cluster"
	"github.com/askiada/go-sweep/pkg/sweep/dimred"
	"github.com/askiada/go-sweep/pkg/sweep/impute"
	"github.com/askiada/go-sweep/pkg/sweep/pairwise"
	"github.com/askiada/go-sweep/pkg/sweep/preprocess"
)

// autoFolds is the cross-validation depth of the automatic
// cluster-count selection.
const autoFolds = 10

// Parser translates configuration stage options into labelled
// capability factories.
type Parser struct {
	log *zap.Logger
}

// NewParser returns a step parser. A nil logger is replaced with a
// no-op one.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log}
}

// ParseSteps expands the four configuration sections into the parsed
// option lists consumed by Expand. Options with the flag off are
// dropped; unknown algorithm names degrade to identity steps.
func (p *Parser) ParseSteps(cfg *Config) (imputing, preproc, dr, clustering []Option) {
	if cfg.Impute.On {
		for _, strategy := range cfg.Impute.Replacement {
			imputing = append(imputing, p.parseImpute(strategy, cfg.Impute.MissingValue()))
		}
	}
	for _, sc := range cfg.Preprocess {
		if sc.On {
			preproc = append(preproc, p.parsePreproc(sc))
		}
	}
	for _, sc := range cfg.DimRed {
		if !sc.On {
			continue
		}
		if len(sc.Variants) > 0 {
			for _, variant := range sc.Variants {
				dr = append(dr, p.parseDimred(sc.Name, variant, true))
			}
			continue
		}
		dr = append(dr, p.parseDimred(sc.Name, "", false))
	}
	for _, sc := range cfg.Cluster {
		if !sc.On {
			continue
		}
		if len(sc.Params) == 0 {
			clustering = append(clustering, p.parseClustering(sc.Name, nil))
			continue
		}
		for _, combo := range expandParams(sc.Params) {
			if !validClusterParams(combo) {
				p.log.Info("dropping undefined clustering combination",
					zap.String("algorithm", sc.Name), zap.Any("params", combo))
				continue
			}
			clustering = append(clustering, p.parseClustering(sc.Name, combo))
		}
	}
	return imputing, preproc, dr, clustering
}

func (p *Parser) parseImpute(strategy string, missing float64) Option {
	log := p.log
	return Option{
		Label: "Impute_" + strategy,
		Kind:  StageImpute,
		New: func() (capability.Capability, error) {
			return impute.New(strategy, missing, log)
		},
	}
}

func (p *Parser) parsePreproc(sc StageConfig) Option {
	opt := Option{Label: sc.Name, Kind: StagePreprocess}
	switch strings.ToLower(sc.Name) {
	case "none":
		opt.New = identityFactory
	case "recenter":
		opt.New = func() (capability.Capability, error) { return preprocess.NewRecenter(), nil }
	case "standardize":
		opt.New = func() (capability.Capability, error) { return preprocess.NewStandardize(), nil }
	case "normalize":
		norm := stringParam(sc.Params, "norm", "l2")
		opt.New = func() (capability.Capability, error) { return preprocess.NewNormalize(norm), nil }
	case "minmax":
		lo := floatParam(sc.Params, "min", 0)
		hi := floatParam(sc.Params, "max", 1)
		opt.New = func() (capability.Capability, error) { return preprocess.NewMinMax(lo, hi), nil }
	default:
		p.log.Warn("unknown preprocessing option, falling back to identity", zap.String("name", sc.Name))
		opt.New = identityFactory
	}
	return opt
}

func (p *Parser) parseDimred(name, variant string, labelled bool) Option {
	label := name
	if labelled && variant != "" {
		label = name + "_" + variant
	}
	opt := Option{Label: label, Kind: StageDimRed}
	switch strings.ToLower(name) {
	case "none":
		opt.New = identityFactory
	case "pca":
		opt.New = func() (capability.Capability, error) { return dimred.NewPCA(), nil }
	case "incrementalpca":
		opt.New = func() (capability.Capability, error) { return dimred.NewIncrementalPCA(0), nil }
	case "randomizedpca":
		opt.New = func() (capability.Capability, error) { return dimred.NewRandomizedPCA(0), nil }
	case "kernelpca":
		kernel := variant
		opt.New = func() (capability.Capability, error) { return dimred.NewKernelPCA(kernel, 0), nil }
	case "isomap":
		opt.New = func() (capability.Capability, error) { return dimred.NewIsomap(0, 0), nil }
	case "lle":
		opt.New = func() (capability.Capability, error) { return dimred.NewLLE(dimred.MethodStandard, 0, 0), nil }
	case "ltsa":
		opt.New = func() (capability.Capability, error) { return dimred.NewLLE(dimred.MethodLTSA, 0, 0), nil }
	case "se":
		opt.New = func() (capability.Capability, error) { return dimred.NewSpectralEmbedding(0, 0), nil }
	case "mds":
		metric := variant != "nonmetric"
		opt.New = func() (capability.Capability, error) { return dimred.NewMDS(metric, 0), nil }
	case "tsne":
		opt.New = func() (capability.Capability, error) { return dimred.NewTSNE(3, 0), nil }
	default:
		p.log.Warn("unknown dimensionality-reduction option, falling back to identity", zap.String("name", name))
		opt.New = identityFactory
	}
	return opt
}

func (p *Parser) parseClustering(name string, params map[string]interface{}) Option {
	if params == nil {
		params = map[string]interface{}{}
	}
	if stringParam(params, "n_clusters", "") == "auto" || stringParam(params, "preference", "") == "auto" {
		delete(params, "n_clusters")
		delete(params, "preference")
		return p.parseAutoClustering(name, params)
	}

	opt := Option{Label: clusterLabel(name, params), Kind: StageCluster}
	switch strings.ToLower(name) {
	case "kmeans":
		k := intParam(params, "n_clusters", 8)
		maxIter := intParam(params, "max_iter", 0)
		opt.New = func() (capability.Capability, error) { return cluster.NewKMeans(k, maxIter) }
	case "ap":
		preference := floatParam(params, "preference", 1)
		damping := floatParam(params, "damping", 0.5)
		affinity := stringParam(params, "affinity", pairwise.Euclidean)
		opt.New = func() (capability.Capability, error) {
			return cluster.NewAffinityPropagation(preference, damping, affinity)
		}
	case "ms":
		bandwidth := floatParam(params, "bandwidth", 0)
		opt.New = func() (capability.Capability, error) { return cluster.NewMeanShift(bandwidth), nil }
	case "spectral":
		k := intParam(params, "n_clusters", 8)
		gamma := floatParam(params, "gamma", 0)
		opt.New = func() (capability.Capability, error) { return cluster.NewSpectral(k, gamma) }
	case "hierarchical":
		k := intParam(params, "n_clusters", 2)
		affinity := stringParam(params, "affinity", pairwise.Euclidean)
		linkage := stringParam(params, "linkage", cluster.LinkageWard)
		opt.New = func() (capability.Capability, error) { return cluster.NewHierarchical(k, affinity, linkage) }
	default:
		p.log.Warn("unknown clustering option, falling back to identity", zap.String("name", name))
		opt.New = identityFactory
		return opt
	}

	// Surface configuration mistakes at parse time instead of failing
	// every pipeline that carries the option.
	if _, err := opt.New(); err != nil {
		p.log.Warn("invalid clustering option, falling back to identity",
			zap.String("name", name), zap.Error(err))
		opt.New = identityFactory
	}
	return opt
}

// parseAutoClustering wires the requested algorithm into the
// cross-validated cluster-count selector.
func (p *Parser) parseAutoClustering(name string, params map[string]interface{}) Option {
	log := p.log
	opt := Option{Label: clusterLabel(name, params) + "_auto", Kind: StageCluster}
	switch strings.ToLower(name) {
	case "kmeans":
		maxIter := intParam(params, "max_iter", 0)
		opt.New = func() (capability.Capability, error) {
			build := func(v float64) (capability.Clusterer, error) { return cluster.NewKMeans(int(v), maxIter) }
			return cluster.NewSelector(log, "n_clusters", build, cluster.SqrtNGrid, autoFolds, false), nil
		}
	case "ap":
		damping := floatParam(params, "damping", 0.5)
		affinity := stringParam(params, "affinity", pairwise.Euclidean)
		precomputed := affinity == pairwise.Precomputed
		gridMetric := affinity
		if precomputed {
			gridMetric = pairwise.Precomputed
		}
		opt.New = func() (capability.Capability, error) {
			build := func(v float64) (capability.Clusterer, error) {
				return cluster.NewAffinityPropagation(v, damping, affinity)
			}
			return cluster.NewSelector(log, "preference", build, cluster.PreferenceGrid(gridMetric), autoFolds, precomputed), nil
		}
	default:
		p.log.Warn("automatic tuning requested outside kmeans or ap, falling back to identity",
			zap.String("name", name))
		opt.New = identityFactory
	}
	return opt
}

func identityFactory() (capability.Capability, error) {
	return capability.NewIdentity(), nil
}

// clusterLabel renders a stable label for a concrete parameter
// combination so two variants of the same algorithm stay telling apart
// in logs and results.
func clusterLabel(name string, params map[string]interface{}) string {
	if len(params) == 0 {
		return name
	}
	parts := []string{name}
	for _, key := range sortedKeys(params) {
		parts = append(parts, fmt.Sprintf("%s=%v", key, params[key]))
	}
	return strings.Join(parts, "_")
}

func stringParam(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return fallback
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func floatParam(params map[string]interface{}, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
