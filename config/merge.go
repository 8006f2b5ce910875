package config

// mergeConfigs merges override configuration into base
func mergeConfigs(base, override *Config) *Config {
	result := *base

	// Merge version
	if override.Version != "" {
		result.Version = override.Version
	}

	// Merge settings field by field
	result.Settings = mergeSettings(result.Settings, override.Settings)

	// Repositories are replaced wholesale: a partial repository merge would
	// produce entries with mixed provenance that are impossible to reason about.
	if len(override.Repositories) > 0 {
		result.Repositories = override.Repositories
	}

	// Merge extensions
	if override.Extensions != nil {
		if result.Extensions == nil {
			result.Extensions = make(map[string]interface{})
		}
		for key, value := range override.Extensions {
			// If both base and override have the same extension key, merge them
			if baseValue, exists := result.Extensions[key]; exists {
				if baseMap, baseOk := baseValue.(map[string]interface{}); baseOk {
					if overrideMap, overrideOk := value.(map[string]interface{}); overrideOk {
						mergedMap := make(map[string]interface{}, len(baseMap)+len(overrideMap))
						for k, v := range baseMap {
							mergedMap[k] = v
						}
						for k, v := range overrideMap {
							mergedMap[k] = v
						}
						result.Extensions[key] = mergedMap
						continue
					}
				}
			}
			result.Extensions[key] = value
		}
	}

	return &result
}

func mergeSettings(base, override Settings) Settings {
	result := base
	if override.ServerHost != "" {
		result.ServerHost = override.ServerHost
	}
	if override.ServerPort != 0 {
		result.ServerPort = override.ServerPort
	}
	if override.BaseURL != "" {
		result.BaseURL = override.BaseURL
	}
	if override.BridgeHome != "" {
		result.BridgeHome = override.BridgeHome
	}
	if override.WorkspacesDir != "" {
		result.WorkspacesDir = override.WorkspacesDir
	}
	if override.DefaultRunner != "" {
		result.DefaultRunner = override.DefaultRunner
	}
	if override.RouterModel != "" {
		result.RouterModel = override.RouterModel
	}
	if override.SessionRetention != "" {
		result.SessionRetention = override.SessionRetention
	}
	if override.ApprovalTimeout != "" {
		result.ApprovalTimeout = override.ApprovalTimeout
	}
	return result
}
