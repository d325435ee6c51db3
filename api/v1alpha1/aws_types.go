package v1alpha1

// AccessSpec names the IAM principal granted cluster access and the
// Kubernetes identity it maps to.
type AccessSpec struct {
	// IAM role to create or adopt
	RoleName string `json:"roleName,omitempty" yaml:"roleName"`
	// IAM user trusted to assume the role; when empty the cluster OIDC
	// provider is trusted instead
	UserARN string `json:"userARN,omitempty" yaml:"userARN,omitempty"`
	// Kubernetes username the principal maps to
	Username string `json:"username,omitempty" yaml:"username"`
	// Kubernetes groups the principal maps to
	Groups []string `json:"groups,omitempty" yaml:"groups"`
}

// IRSASpec binds a Kubernetes service account to an IAM role via the
// cluster OIDC provider.
type IRSASpec struct {
	// Namespace of the service account
	Namespace string `json:"namespace,omitempty" yaml:"namespace"`
	// Service account to annotate
	ServiceAccount string `json:"serviceAccount,omitempty" yaml:"serviceAccount"`
	// Deployment restarted after annotation so pods pick up credentials
	Deployment string `json:"deployment,omitempty" yaml:"deployment"`
	// IAM role to create or adopt
	RoleName string `json:"roleName,omitempty" yaml:"roleName"`
	// Name of the inline policy attached to the role
	PolicyName string `json:"policyName,omitempty" yaml:"policyName"`
}

type AWSStatus struct {
	Role AWSRoleStatus `json:"role,omitempty" yaml:"role,omitempty"`
	IRSA IRSAStatus    `json:"irsa,omitempty" yaml:"irsa,omitempty"`
	// ARN of the IAM OIDC provider registered for the cluster
	OIDCProviderARN string `json:"oidcProviderARN,omitempty" yaml:"oidcProviderARN,omitempty"`
}

type AWSRoleStatus struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	ARN  string `json:"arn,omitempty" yaml:"arn,omitempty"`
}

type IRSAStatus struct {
	RoleARN string `json:"roleARN,omitempty" yaml:"roleARN,omitempty"`
	// Whether the controller rollout completed within its wait window
	RolloutComplete bool `json:"rolloutComplete,omitempty" yaml:"rolloutComplete,omitempty"`
}
